package notify

import (
	"context"
	"log/slog"
)

// LogNotifier stands in for FCM when no credentials are configured: offline
// receivers are recorded, nothing is pushed. Local development runs with
// this.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyOffline(_ context.Context, receiverID, senderID, message string) error {
	n.log.Info("Offline receiver, push disabled",
		"receiver_id", receiverID, "sender_id", senderID, "summary", Summarize(message))
	return nil
}
