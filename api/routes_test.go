package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChatHistoryRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	enc := mocks.NewMockEncryptor(ctrl)
	chats := mocks.NewMockChatStore(ctrl)
	groups := mocks.NewMockGroupStore(ctrl)
	mux := http.NewServeMux()
	RegisterRoutes(mux, discardLogger(), enc, chats, groups)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("should return decrypted history newest first with a cursor", func(t *testing.T) {
		req := require.New(t)
		at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		id1, id2 := uuid.New(), uuid.New()
		cursor := "0000000000000001:abc"

		chats.EXPECT().FindOrCreateChat(gomock.Any(), "alice", "bob").Return("chat-1", nil)
		chats.EXPECT().Messages(gomock.Any(), "chat-1", nil).Return([]domain.Message{
			{ID: id1, ChatID: "chat-1", SenderID: "bob", Content: "aa:b1", At: at.Add(time.Minute)},
			{ID: id2, ChatID: "chat-1", SenderID: "alice", Content: "aa:b2", At: at},
		}, &cursor, nil)
		enc.EXPECT().Decrypt("aa:b1").Return("hello back", nil)
		enc.EXPECT().Decrypt("aa:b2").Return("hello", nil)

		rec := get("/api/chats/alice/bob/messages")

		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(fmt.Sprintf(`{
			"chatId": "chat-1",
			"messages": [
				{"id": %q, "senderId": "bob", "content": "hello back", "at": "2026-08-30T12:01:00Z"},
				{"id": %q, "senderId": "alice", "content": "hello", "at": "2026-08-30T12:00:00Z"}
			],
			"cursor": "0000000000000001:abc"
		}`, id1, id2), rec.Body.String())
	})

	t.Run("should pass the cursor query parameter to the store", func(t *testing.T) {
		req := require.New(t)
		cursor := "0000000000000001:abc"
		next := "0000000000000000:def"

		chats.EXPECT().FindOrCreateChat(gomock.Any(), "alice", "bob").Return("chat-1", nil)
		chats.EXPECT().
			Messages(gomock.Any(), "chat-1", gomock.Cond(func(c *string) bool {
				return c != nil && *c == cursor
			})).
			Return([]domain.Message{{ID: uuid.New(), SenderID: "alice", Content: "aa:b3"}}, &next, nil)
		enc.EXPECT().Decrypt("aa:b3").Return("older", nil)

		rec := get("/api/chats/alice/bob/messages?cursor=" + cursor)

		req.Equal(http.StatusOK, rec.Code)
		req.Contains(rec.Body.String(), next)
	})

	t.Run("should omit the cursor on an empty page", func(t *testing.T) {
		req := require.New(t)
		empty := ""

		chats.EXPECT().FindOrCreateChat(gomock.Any(), "alice", "bob").Return("chat-1", nil)
		chats.EXPECT().Messages(gomock.Any(), "chat-1", nil).Return(nil, &empty, nil)

		rec := get("/api/chats/alice/bob/messages")

		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(`{"chatId": "chat-1", "messages": []}`, rec.Body.String())
	})

	t.Run("should map a storage failure to 500", func(t *testing.T) {
		req := require.New(t)

		chats.EXPECT().FindOrCreateChat(gomock.Any(), "alice", "bob").Return("", errors.ErrStore)

		rec := get("/api/chats/alice/bob/messages")

		req.Equal(http.StatusInternalServerError, rec.Code)
		req.NotContains(rec.Body.String(), "store failure")
	})

	t.Run("should map a decrypt failure to 500 without leaking ciphertext", func(t *testing.T) {
		req := require.New(t)
		cursor := "c"

		chats.EXPECT().FindOrCreateChat(gomock.Any(), "alice", "bob").Return("chat-1", nil)
		chats.EXPECT().Messages(gomock.Any(), "chat-1", nil).Return([]domain.Message{
			{ID: uuid.New(), SenderID: "bob", Content: "aa:bad"},
		}, &cursor, nil)
		enc.EXPECT().Decrypt("aa:bad").Return("", fmt.Errorf("bad ciphertext"))

		rec := get("/api/chats/alice/bob/messages")

		req.Equal(http.StatusInternalServerError, rec.Code)
		req.NotContains(rec.Body.String(), "aa:bad")
	})
}

func TestGroupHistoryRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	enc := mocks.NewMockEncryptor(ctrl)
	chats := mocks.NewMockChatStore(ctrl)
	groups := mocks.NewMockGroupStore(ctrl)
	mux := http.NewServeMux()
	RegisterRoutes(mux, discardLogger(), enc, chats, groups)

	t.Run("should return the group's decrypted history", func(t *testing.T) {
		req := require.New(t)
		id := uuid.New()
		cursor := "k1"

		groups.EXPECT().Messages(gomock.Any(), "grp-1", nil).Return([]domain.GroupMessage{
			{ID: id, GroupID: "grp-1", SenderID: "carol", Content: "aa:g1", At: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
		}, &cursor, nil)
		enc.EXPECT().Decrypt("aa:g1").Return("team update", nil)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/grp-1/messages", nil))

		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(fmt.Sprintf(`{
			"groupId": "grp-1",
			"messages": [{"id": %q, "senderId": "carol", "content": "team update", "at": "2026-08-30T12:00:00Z"}],
			"cursor": "k1"
		}`, id), rec.Body.String())
	})

	t.Run("should map a storage failure to 500", func(t *testing.T) {
		req := require.New(t)

		groups.EXPECT().Messages(gomock.Any(), "grp-1", nil).Return(nil, nil, errors.ErrStore)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/grp-1/messages", nil))

		req.Equal(http.StatusInternalServerError, rec.Code)
	})
}

func TestGroupMembershipRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	enc := mocks.NewMockEncryptor(ctrl)
	chats := mocks.NewMockChatStore(ctrl)
	groups := mocks.NewMockGroupStore(ctrl)
	mux := http.NewServeMux()
	RegisterRoutes(mux, discardLogger(), enc, chats, groups)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		var r *http.Request
		if body == "" {
			r = httptest.NewRequest(method, path, nil)
		} else {
			r = httptest.NewRequest(method, path, strings.NewReader(body))
		}
		mux.ServeHTTP(rec, r)
		return rec
	}

	t.Run("should add a member to the roster", func(t *testing.T) {
		req := require.New(t)

		groups.EXPECT().AddMember(gomock.Any(), "grp-1", "alice").Return(nil)

		rec := do(http.MethodPost, "/api/groups/grp-1/members", `{"userId":"alice"}`)

		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(`{"status":"ok"}`, rec.Body.String())
	})

	t.Run("should reject a body without userId", func(t *testing.T) {
		req := require.New(t)

		rec := do(http.MethodPost, "/api/groups/grp-1/members", `{}`)

		req.Equal(http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		req := require.New(t)

		rec := do(http.MethodPost, "/api/groups/grp-1/members", `{"userId":`)

		req.Equal(http.StatusBadRequest, rec.Code)
	})

	t.Run("should remove a member from the roster", func(t *testing.T) {
		req := require.New(t)

		groups.EXPECT().RemoveMember(gomock.Any(), "grp-1", "alice").Return(nil)

		rec := do(http.MethodDelete, "/api/groups/grp-1/members/alice", "")

		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(`{"status":"ok"}`, rec.Body.String())
	})

	t.Run("should list the roster, empty as an empty array", func(t *testing.T) {
		req := require.New(t)

		groups.EXPECT().Members(gomock.Any(), "grp-1").Return([]string{"alice", "bob"}, nil)
		rec := do(http.MethodGet, "/api/groups/grp-1/members", "")
		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(`{"members":["alice","bob"]}`, rec.Body.String())

		groups.EXPECT().Members(gomock.Any(), "grp-2").Return(nil, nil)
		rec = do(http.MethodGet, "/api/groups/grp-2/members", "")
		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(`{"members":[]}`, rec.Body.String())
	})

	t.Run("should map a storage failure to 500", func(t *testing.T) {
		req := require.New(t)

		groups.EXPECT().AddMember(gomock.Any(), "grp-1", "alice").Return(errors.ErrStore)

		rec := do(http.MethodPost, "/api/groups/grp-1/members", `{"userId":"alice"}`)

		req.Equal(http.StatusInternalServerError, rec.Code)
	})
}
