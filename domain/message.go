// Package domain contains core concepts of the relay.
// This file defines the persisted message shapes.
// Content is ciphertext everywhere outside the transient relay call.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one row of a direct chat. Content holds the encrypted body.
type Message struct {
	ID       uuid.UUID
	ChatID   string
	SenderID string
	Content  string
	At       time.Time
}

// GroupMessage is one row of a group conversation.
type GroupMessage struct {
	ID       uuid.UUID
	GroupID  string
	SenderID string
	Content  string
	At       time.Time
}
