package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
)

type CallRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewCallRepository(db *badger.DB, log *slog.Logger) CallRepository {
	return CallRepository{db: db, log: log}
}

type callRow struct {
	CallerID  string    `json:"callerId"`
	CalleeID  string    `json:"calleeId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func callKey(callID string) []byte {
	return []byte("call:" + callID)
}

// Create logs a new call row and returns the store-assigned call id.
func (r CallRepository) Create(_ context.Context, callerID, calleeID string, status domain.CallState) (string, error) {
	callID := uuid.NewString()
	now := time.Now().UTC()
	row, err := json.Marshal(callRow{
		CallerID:  callerID,
		CalleeID:  calleeID,
		Status:    string(status),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding call: %v", errors.ErrStore, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(callKey(callID), row)
	})
	if err != nil {
		return "", fmt.Errorf("%w: creating call: %v", errors.ErrStore, err)
	}
	return callID, nil
}

func (r CallRepository) UpdateStatus(_ context.Context, callID string, status domain.CallState) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		row, err := getCallRow(txn, callID)
		if err != nil {
			return err
		}
		row.Status = string(status)
		row.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return txn.Set(callKey(callID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: updating call %s status: %v", errors.ErrStore, callID, err)
	}
	return nil
}

func (r CallRepository) GetStatus(_ context.Context, callID string) (domain.CallState, error) {
	var status domain.CallState
	err := r.db.View(func(txn *badger.Txn) error {
		row, err := getCallRow(txn, callID)
		if err != nil {
			return err
		}
		status = domain.CallState(row.Status)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: fetching call %s status: %v", errors.ErrStore, callID, err)
	}
	return status, nil
}

// Get returns the full call row, mainly for the inspector CLI and tests.
func (r CallRepository) Get(_ context.Context, callID string) (domain.Call, error) {
	var call domain.Call
	err := r.db.View(func(txn *badger.Txn) error {
		row, err := getCallRow(txn, callID)
		if err != nil {
			return err
		}
		call = domain.Call{
			ID:        callID,
			CallerID:  row.CallerID,
			CalleeID:  row.CalleeID,
			Status:    domain.CallState(row.Status),
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return domain.Call{}, fmt.Errorf("%w: fetching call %s: %v", errors.ErrStore, callID, err)
	}
	return call, nil
}

func getCallRow(txn *badger.Txn, callID string) (callRow, error) {
	var row callRow
	item, err := txn.Get(callKey(callID))
	if err != nil {
		return row, err
	}
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &row)
	})
	return row, err
}
