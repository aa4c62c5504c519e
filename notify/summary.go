// Package notify delivers the push fallback for receivers without a live
// channel, over Firebase Cloud Messaging's HTTP v1 API.
package notify

import (
	"fmt"

	"github.com/abadojack/whatlanggo"
)

// maxSummaryRunes bounds the notification body: a push is a teaser, the full
// message waits in the chat history.
const maxSummaryRunes = 96

// Summarize truncates a message body for the notification tray, cutting on
// runes so multi-byte text never ends mid-character.
func Summarize(message string) string {
	runes := []rune(message)
	if len(runes) <= maxSummaryRunes {
		return message
	}
	return string(runes[:maxSummaryRunes]) + "…"
}

// Title localizes the notification headline to the language the message
// itself is written in; best effort, English otherwise.
func Title(senderID, message string) string {
	info := whatlanggo.Detect(message)
	switch info.Lang {
	case whatlanggo.Fra:
		return fmt.Sprintf("Nouveau message de %s", senderID)
	case whatlanggo.Spa:
		return fmt.Sprintf("Nuevo mensaje de %s", senderID)
	case whatlanggo.Deu:
		return fmt.Sprintf("Neue Nachricht von %s", senderID)
	case whatlanggo.Por:
		return fmt.Sprintf("Nova mensagem de %s", senderID)
	default:
		return fmt.Sprintf("New message from %s", senderID)
	}
}
