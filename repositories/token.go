package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/errors"
)

// TokenRepository stores each user's push token under "fcm:{userId}".
type TokenRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewTokenRepository(db *badger.DB, log *slog.Logger) TokenRepository {
	return TokenRepository{db: db, log: log}
}

func (r TokenRepository) SaveToken(_ context.Context, userID, token string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("fcm:"+userID), []byte(token))
	})
	if err != nil {
		return fmt.Errorf("%w: saving push token: %v", errors.ErrStore, err)
	}
	return nil
}

func (r TokenRepository) Token(_ context.Context, userID string) (string, bool, error) {
	var token string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("fcm:" + userID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			token = string(v)
			return nil
		})
	})
	switch err {
	case nil:
		return token, true, nil
	case badger.ErrKeyNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: fetching push token: %v", errors.ErrStore, err)
	}
}
