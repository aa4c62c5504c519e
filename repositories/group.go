package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/domain"
	"chat-relay/errors"
)

type GroupRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewGroupRepository(db *badger.DB, log *slog.Logger, limitMessages *int) GroupRepository {
	return GroupRepository{db: db, log: log, limitMessages: limitMessages}
}

// AddMember puts userID on the group's roster. Idempotent.
func (r GroupRepository) AddMember(_ context.Context, groupID, userID string) error {
	key := fmt.Sprintf("grpmember:%s:%s", groupID, userID)
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), nil)
	})
	if err != nil {
		return fmt.Errorf("%w: adding group member: %v", errors.ErrStore, err)
	}
	return nil
}

func (r GroupRepository) RemoveMember(_ context.Context, groupID, userID string) error {
	key := fmt.Sprintf("grpmember:%s:%s", groupID, userID)
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: removing group member: %v", errors.ErrStore, err)
	}
	return nil
}

// Members returns the group's roster via a key-only prefix scan.
func (r GroupRepository) Members(_ context.Context, groupID string) ([]string, error) {
	prefixStr := fmt.Sprintf("grpmember:%s:", groupID)
	var members []string
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(prefixStr)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			members = append(members, string(it.Item().Key()[len(prefixStr):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching group members: %v", errors.ErrStore, err)
	}
	return members, nil
}

func (r GroupRepository) InsertMessage(_ context.Context, groupID, senderID, ciphertext string, at time.Time) error {
	key := fmt.Sprintf("grpmsg:%s:%019d:%s", groupID, at.UnixNano(), uuid.NewString())
	row, err := json.Marshal(messageRow{ID: uuid.NewString(), SenderID: senderID, Content: ciphertext, At: at.UTC()})
	if err != nil {
		return fmt.Errorf("%w: encoding group message: %v", errors.ErrStore, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), row)
	})
	if err != nil {
		return fmt.Errorf("%w: inserting group message: %v", errors.ErrStore, err)
	}
	return nil
}

// Messages retrieves a group's history newest-first with cursor pagination.
func (r GroupRepository) Messages(_ context.Context, groupID string, cursor *string) ([]domain.GroupMessage, *string, error) {
	rows, lastKey, err := scanRows(r.db, fmt.Sprintf("grpmsg:%s:", groupID), cursor, r.limitMessages, r.log)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fetching group messages: %v", errors.ErrStore, err)
	}
	messages := lo.Map(rows, func(row messageRow, _ int) domain.GroupMessage {
		return toGroupMessage(groupID, row)
	})
	return messages, lastKey, nil
}

func toGroupMessage(groupID string, row messageRow) domain.GroupMessage {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		id = uuid.Nil
	}
	return domain.GroupMessage{
		ID:       id,
		GroupID:  groupID,
		SenderID: row.SenderID,
		Content:  row.Content,
		At:       row.At,
	}
}
