// Package api exposes the stored side of the relay over HTTP: conversation
// history and group roster management. Message content is decrypted before it
// leaves the store, the same way live delivery decrypts immediately before
// the channel write.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
)

type messageResponse struct {
	ID       string    `json:"id"`
	SenderID string    `json:"senderId"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}

type historyResponse struct {
	ChatID   string            `json:"chatId,omitempty"`
	GroupID  string            `json:"groupId,omitempty"`
	Messages []messageResponse `json:"messages"`
	Cursor   string            `json:"cursor,omitempty"`
}

type memberRequest struct {
	UserID string `json:"userId"`
}

// RegisterRoutes mounts history and membership endpoints. History pages are
// newest-first; the response cursor, passed back as the cursor query
// parameter, continues where the page stopped.
func RegisterRoutes(mux *http.ServeMux, log *slog.Logger, enc contract.Encryptor,
	chats contract.ChatStore, groups contract.GroupStore) {

	mux.HandleFunc("GET /api/chats/{userA}/{userB}/messages", func(w http.ResponseWriter, r *http.Request) {
		chatID, err := chats.FindOrCreateChat(r.Context(), r.PathValue("userA"), r.PathValue("userB"))
		if err != nil {
			log.Error("Resolving chat failed", "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		messages, cursor, err := chats.Messages(r.Context(), chatID, cursorParam(r))
		if err != nil {
			log.Error("Fetching chat history failed", "chat_id", chatID, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		rows, err := decryptAll(enc, lo.Map(messages, func(m domain.Message, _ int) messageResponse {
			return messageResponse{ID: m.ID.String(), SenderID: m.SenderID, Content: m.Content, At: m.At}
		}))
		if err != nil {
			log.Error("Decrypting chat history failed", "chat_id", chatID, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, historyResponse{ChatID: chatID, Messages: rows, Cursor: nextCursor(rows, cursor)})
	})

	mux.HandleFunc("GET /api/groups/{groupId}/messages", func(w http.ResponseWriter, r *http.Request) {
		groupID := r.PathValue("groupId")
		messages, cursor, err := groups.Messages(r.Context(), groupID, cursorParam(r))
		if err != nil {
			log.Error("Fetching group history failed", "group_id", groupID, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		rows, err := decryptAll(enc, lo.Map(messages, func(m domain.GroupMessage, _ int) messageResponse {
			return messageResponse{ID: m.ID.String(), SenderID: m.SenderID, Content: m.Content, At: m.At}
		}))
		if err != nil {
			log.Error("Decrypting group history failed", "group_id", groupID, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, historyResponse{GroupID: groupID, Messages: rows, Cursor: nextCursor(rows, cursor)})
	})

	mux.HandleFunc("GET /api/groups/{groupId}/members", func(w http.ResponseWriter, r *http.Request) {
		groupID := r.PathValue("groupId")
		members, err := groups.Members(r.Context(), groupID)
		if err != nil {
			log.Error("Fetching group roster failed", "group_id", groupID, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		if members == nil {
			members = []string{}
		}
		writeJSON(w, map[string][]string{"members": members})
	})

	mux.HandleFunc("POST /api/groups/{groupId}/members", func(w http.ResponseWriter, r *http.Request) {
		groupID := r.PathValue("groupId")
		var req memberRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		if err := groups.AddMember(r.Context(), groupID, req.UserID); err != nil {
			log.Error("Adding group member failed", "group_id", groupID, "user_id", req.UserID, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("DELETE /api/groups/{groupId}/members/{userId}", func(w http.ResponseWriter, r *http.Request) {
		groupID, userID := r.PathValue("groupId"), r.PathValue("userId")
		if err := groups.RemoveMember(r.Context(), groupID, userID); err != nil {
			log.Error("Removing group member failed", "group_id", groupID, "user_id", userID, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})
}

func cursorParam(r *http.Request) *string {
	if c := r.URL.Query().Get("cursor"); c != "" {
		return &c
	}
	return nil
}

// nextCursor suppresses the store's cursor on an empty page: there is
// nothing left to continue from.
func nextCursor(rows []messageResponse, cursor *string) string {
	if len(rows) == 0 || cursor == nil {
		return ""
	}
	return *cursor
}

func decryptAll(enc contract.Encryptor, rows []messageResponse) ([]messageResponse, error) {
	for i, row := range rows {
		plaintext, err := enc.Decrypt(row.Content)
		if err != nil {
			return nil, err
		}
		rows[i].Content = plaintext
	}
	return rows, nil
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
