//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"chat-relay/domain"
	"chat-relay/wire"
)

// Channel is the capability for pushing one envelope to one connected peer.
// Send is bounded-blocking: a slow or unresponsive peer fails the write after
// the transport's configured deadline instead of stalling the caller.
//
// Implementations must be comparable (pointers in practice): the registry's
// stale-unregister guard and call-session signaling both key on handle
// identity, not on user id.
type Channel interface {
	Send(ctx context.Context, env wire.Envelope) error
}

// IRegistry tracks which users are reachable over a live channel, one handle
// per (namespace, user) pair.
type IRegistry interface {
	Register(ns domain.Namespace, userID string, ch Channel)
	Lookup(ns domain.Namespace, userID string) (Channel, bool)
	Unregister(ns domain.Namespace, userID string, ch Channel)
}

// Encryptor provides symmetric at-rest encryption. Each Encrypt call uses
// fresh randomness; the ciphertext embeds whatever Decrypt needs.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Notifier delivers the best-effort push fallback when a receiver has no live
// channel. Failures are logged by callers, never surfaced to the sender: by
// the time the notifier runs, the message is already durably stored.
type Notifier interface {
	NotifyOffline(ctx context.Context, receiverID, senderID, message string) error
}

// ChatStore persists direct chats. A chat is uniquely identified by its
// unordered participant pair; FindOrCreateChat canonicalizes the pair before
// lookup so both orderings resolve to the same chat.
type ChatStore interface {
	FindOrCreateChat(ctx context.Context, idA, idB string) (string, error)
	InsertMessage(ctx context.Context, chatID, senderID, ciphertext string, at time.Time) error
	Messages(ctx context.Context, chatID string, cursor *string) ([]domain.Message, *string, error)
}

type GroupStore interface {
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	Members(ctx context.Context, groupID string) ([]string, error)
	InsertMessage(ctx context.Context, groupID, senderID, ciphertext string, at time.Time) error
	Messages(ctx context.Context, groupID string, cursor *string) ([]domain.GroupMessage, *string, error)
}

type CallStore interface {
	Create(ctx context.Context, callerID, calleeID string, status domain.CallState) (string, error)
	UpdateStatus(ctx context.Context, callID string, status domain.CallState) error
	GetStatus(ctx context.Context, callID string) (domain.CallState, error)
}

// TokenStore maps users to their push tokens. A user without a token is a
// normal state, reported through ok, not through err.
type TokenStore interface {
	SaveToken(ctx context.Context, userID, token string) error
	Token(ctx context.Context, userID string) (token string, ok bool, err error)
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
