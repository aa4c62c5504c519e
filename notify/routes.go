package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chat-relay/contract"
)

type tokenRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"fcmToken"`
}

// RegisterRoutes mounts the device-token intake. Clients re-post their FCM
// token on login and on token rotation; the latest write wins.
func RegisterRoutes(mux *http.ServeMux, log *slog.Logger, tokens contract.TokenStore) {
	mux.HandleFunc("POST /api/fcm-token", func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.Token == "" {
			http.Error(w, "userId and fcmToken are required", http.StatusBadRequest)
			return
		}
		if err := tokens.SaveToken(r.Context(), req.UserID, req.Token); err != nil {
			log.Error("Saving device token failed", "user_id", req.UserID, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}
