// Package wire defines the envelope contract spoken on every relay connection.
// Inbound frames are decoded exactly once, at the transport boundary, into a
// closed set of typed variants; outbound envelopes are only ever built through
// the constructors below, so peers never see partial or garbled frames.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"chat-relay/errors"
)

type Type string

// Inbound envelope types.
const (
	TypeRegister         Type = "register"
	TypeSendMessage      Type = "sendMessage"
	TypeSendGroupMessage Type = "sendGroupMessage"
	TypeCall             Type = "call"
	TypeAnswer           Type = "answer"
	TypeIceCandidate     Type = "iceCandidate"
	TypeHangup           Type = "hangup"
)

// Outbound envelope types. TypeIceCandidate and TypeHangup travel both ways.
const (
	TypeReceiveMessage      Type = "receiveMessage"
	TypeReceiveGroupMessage Type = "receiveGroupMessage"
	TypeIncomingCall        Type = "incomingCall"
	TypeCallAnswered        Type = "callAnswered"
	TypeError               Type = "error"
	TypeAck                 Type = "ack"
)

type Register struct {
	UserID string `json:"userId" validate:"required"`
}

type SendMessage struct {
	SenderID   string `json:"senderId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required"`
	Message    string `json:"message" validate:"required"`
}

type SendGroupMessage struct {
	GroupID  string `json:"grpId" validate:"required"`
	SenderID string `json:"senderId" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

type Call struct {
	CallerID string          `json:"callerId" validate:"required"`
	CalleeID string          `json:"calleeId" validate:"required"`
	Offer    json.RawMessage `json:"offer" validate:"required"`
}

type Answer struct {
	Answer json.RawMessage `json:"answer" validate:"required"`
}

type IceCandidate struct {
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

type Hangup struct{}

var validate = validator.New()

// Decode parses one raw frame into its typed variant.
// Unknown types and missing required fields are validation errors; the caller
// reports them to the originating connection only.
func Decode(data []byte) (any, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", errors.ErrValidation, err)
	}

	var v any
	switch head.Type {
	case TypeRegister:
		v = &Register{}
	case TypeSendMessage:
		v = &SendMessage{}
	case TypeSendGroupMessage:
		v = &SendGroupMessage{}
	case TypeCall:
		v = &Call{}
	case TypeAnswer:
		v = &Answer{}
	case TypeIceCandidate:
		v = &IceCandidate{}
	case TypeHangup:
		return Hangup{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown envelope type %q", errors.ErrValidation, head.Type)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: malformed %s envelope: %v", errors.ErrValidation, head.Type, err)
	}
	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("%w: %s envelope: %v", errors.ErrValidation, head.Type, err)
	}
	return v, nil
}

// Envelope is the single outbound frame shape. Only the fields relevant to a
// given Type are populated; everything else stays omitted on the wire.
type Envelope struct {
	Type      Type            `json:"type"`
	Status    string          `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
	CallerID  string          `json:"callerId,omitempty"`
	ChatID    string          `json:"chatId,omitempty"`
	GroupID   string          `json:"grpId,omitempty"`
	Encrypted string          `json:"encrypted,omitempty"`
	Message   string          `json:"message,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Timestamps are serialized the way the historical clients expect them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func ReceiveMessage(senderID, encrypted string, at time.Time) Envelope {
	return Envelope{Type: TypeReceiveMessage, SenderID: senderID, Encrypted: encrypted, Timestamp: FormatTime(at)}
}

func ReceiveGroupMessage(groupID, senderID, message string, at time.Time) Envelope {
	return Envelope{Type: TypeReceiveGroupMessage, GroupID: groupID, SenderID: senderID, Message: message, Timestamp: FormatTime(at)}
}

func MessageAck(chatID string, at time.Time) Envelope {
	return Envelope{Type: TypeAck, Status: "Message sent", ChatID: chatID, Timestamp: FormatTime(at)}
}

func GroupAck(groupID string, at time.Time) Envelope {
	return Envelope{Type: TypeAck, Status: "Message sent", GroupID: groupID, Timestamp: FormatTime(at)}
}

func IncomingCall(callerID string, offer json.RawMessage) Envelope {
	return Envelope{Type: TypeIncomingCall, CallerID: callerID, Offer: offer}
}

func CallAnswered(answer json.RawMessage) Envelope {
	return Envelope{Type: TypeCallAnswered, Answer: answer}
}

func Candidate(candidate json.RawMessage) Envelope {
	return Envelope{Type: TypeIceCandidate, Candidate: candidate}
}

func HangupEnvelope() Envelope {
	return Envelope{Type: TypeHangup}
}

func ErrorEnvelope(msg string) Envelope {
	return Envelope{Type: TypeError, Error: msg}
}
