// Package repositories persists chats, groups, calls and push tokens in
// BadgerDB. Rows are JSON-encoded; message keys embed a zero-padded
// nanosecond timestamp so a prefix scan yields chronological order.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/domain"
	"chat-relay/errors"
)

type ChatRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewChatRepository(db *badger.DB, log *slog.Logger, limitMessages *int) ChatRepository {
	return ChatRepository{db: db, log: log, limitMessages: limitMessages}
}

type chatRow struct {
	ParticipantA string    `json:"participantA"`
	ParticipantB string    `json:"participantB"`
	CreatedAt    time.Time `json:"createdAt"`
}

type messageRow struct {
	ID       string    `json:"id"`
	SenderID string    `json:"senderId"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}

// FindOrCreateChat resolves the single chat for an unordered participant
// pair. The pair is sorted before lookup, so (A,B) and (B,A) address the same
// row no matter who sends first.
func (r ChatRepository) FindOrCreateChat(_ context.Context, idA, idB string) (string, error) {
	a, b := sortPair(idA, idB)
	pairKey := []byte(fmt.Sprintf("chatpair:%s:%s", a, b))

	var chatID string
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey)
		switch err {
		case nil:
			return item.Value(func(v []byte) error {
				chatID = string(v)
				return nil
			})
		case badger.ErrKeyNotFound:
			chatID = uuid.NewString()
			row, err := json.Marshal(chatRow{ParticipantA: a, ParticipantB: b, CreatedAt: time.Now().UTC()})
			if err != nil {
				return err
			}
			if err := txn.Set(pairKey, []byte(chatID)); err != nil {
				return err
			}
			return txn.Set([]byte("chat:"+chatID), row)
		default:
			return err
		}
	})
	if err != nil {
		return "", fmt.Errorf("%w: find-or-create chat: %v", errors.ErrStore, err)
	}
	return chatID, nil
}

func (r ChatRepository) InsertMessage(_ context.Context, chatID, senderID, ciphertext string, at time.Time) error {
	key := fmt.Sprintf("msg:%s:%019d:%s", chatID, at.UnixNano(), uuid.NewString())
	row, err := json.Marshal(messageRow{ID: uuid.NewString(), SenderID: senderID, Content: ciphertext, At: at.UTC()})
	if err != nil {
		return fmt.Errorf("%w: encoding message: %v", errors.ErrStore, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), row)
	})
	if err != nil {
		return fmt.Errorf("%w: inserting message: %v", errors.ErrStore, err)
	}
	return nil
}

// Messages retrieves a chat's history newest-first with cursor pagination.
// The cursor is the key remainder after the chat prefix, as returned by the
// previous page.
func (r ChatRepository) Messages(_ context.Context, chatID string, cursor *string) ([]domain.Message, *string, error) {
	rows, lastKey, err := scanRows(r.db, fmt.Sprintf("msg:%s:", chatID), cursor, r.limitMessages, r.log)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fetching messages: %v", errors.ErrStore, err)
	}
	messages := lo.Map(rows, func(row messageRow, _ int) domain.Message {
		return toMessage(chatID, row)
	})
	return messages, lastKey, nil
}

func toMessage(chatID string, row messageRow) domain.Message {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		id = uuid.Nil
	}
	return domain.Message{
		ID:       id,
		ChatID:   chatID,
		SenderID: row.SenderID,
		Content:  row.Content,
		At:       row.At,
	}
}

// scanRows iterates one key prefix in reverse, decoding each value as a
// messageRow. Shared by chat and group histories, which store the same row
// shape under different prefixes.
func scanRows(db *badger.DB, prefixStr string, cursor *string, limit *int, log *slog.Logger) ([]messageRow, *string, error) {
	var rows []messageRow
	var lastKey string
	err := db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit != nil && len(rows) == *limit {
				log.Debug(fmt.Sprintf("Maximum of %d messages reached", *limit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(value []byte) error {
				var row messageRow
				if err := json.Unmarshal(value, &row); err != nil {
					return err
				}
				rows = append(rows, row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rows, &lastKey, nil
}

func sortPair(idA, idB string) (string, string) {
	pair := []string{idA, idB}
	sort.Strings(pair)
	return pair[0], pair[1]
}
