package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jtarrant/relaychat/internal/message"
	"github.com/jtarrant/relaychat/internal/presence"
	"github.com/jtarrant/relaychat/internal/ratelimit"
	"github.com/jtarrant/relaychat/internal/room"
	"github.com/jtarrant/relaychat/internal/store"
	"github.com/jtarrant/relaychat/internal/ws"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedis(client, zerolog.Nop())
	registry := presence.NewRegistry(st)
	history := message.NewLog(st, zerolog.Nop())
	rm := room.New(registry, history, st, limiter, zerolog.Nop())
	sessions := ws.NewManager(zerolog.Nop())

	return New(":0", rm, nil, sessions, zerolog.Nop())
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestJoinCreatesUser(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/user", `{"user":"alice"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodGet, "/users", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var users []string
	if err := json.NewDecoder(w.Body).Decode(&users); err != nil {
		t.Fatalf("failed to decode users: %v", err)
	}
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected [alice], got %v", users)
	}
}

func TestJoinTakenUsernameConflict(t *testing.T) {
	srv := newTestServer(t, nil)

	doJSON(t, srv, http.MethodPost, "/user", `{"user":"alice"}`)
	w := doJSON(t, srv, http.MethodPost, "/user", `{"user":"alice"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
}

func TestJoinValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	if w := doJSON(t, srv, http.MethodPost, "/user", `{"user":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty user: expected 400, got %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodPost, "/user", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", w.Code)
	}
}

func TestLeaveRemovesUser(t *testing.T) {
	srv := newTestServer(t, nil)

	doJSON(t, srv, http.MethodPost, "/user", `{"user":"alice"}`)
	w := doJSON(t, srv, http.MethodDelete, "/user", `{"user":"alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/users", "")
	var users []string
	if err := json.NewDecoder(w.Body).Decode(&users); err != nil {
		t.Fatalf("failed to decode users: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty roster, got %v", users)
	}
}

func TestLeaveAbsentUserNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodDelete, "/user", `{"user":"ghost"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestSendMessageAndHistory(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/message", `{"user":"alice","msg":"hi"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var sent message.Message
	if err := json.NewDecoder(w.Body).Decode(&sent); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if sent.User != "alice" || sent.Text != "hi" {
		t.Fatalf("unexpected message: %+v", sent)
	}

	w = doJSON(t, srv, http.MethodGet, "/messages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var msgs []message.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	if len(msgs) != 1 || msgs[len(msgs)-1].ID != sent.ID {
		t.Fatalf("expected sent message as history tail, got %v", msgs)
	}
}

func TestSendValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	if w := doJSON(t, srv, http.MethodPost, "/message", `{"user":"","msg":"hi"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing user: expected 400, got %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodPost, "/message", `{"user":"alice","msg":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing text: expected 400, got %d", w.Code)
	}
	long := strings.Repeat("a", 2001)
	body := fmt.Sprintf(`{"user":"alice","msg":"%s"}`, long)
	if w := doJSON(t, srv, http.MethodPost, "/message", body); w.Code != http.StatusBadRequest {
		t.Errorf("oversized text: expected 400, got %d", w.Code)
	}
}

func TestSendRateLimited(t *testing.T) {
	srv := newTestServer(t, ratelimit.New(2, time.Minute))

	for i := 0; i < 2; i++ {
		if w := doJSON(t, srv, http.MethodPost, "/message", `{"user":"alice","msg":"hi"}`); w.Code != http.StatusCreated {
			t.Fatalf("send %d: expected 201, got %d", i, w.Code)
		}
	}
	if w := doJSON(t, srv, http.MethodPost, "/message", `{"user":"alice","msg":"hi"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestMessagesEmpty(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/messages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var msgs []message.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(msgs))
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var stats ws.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Active != 0 {
		t.Errorf("expected 0 active sessions, got %d", stats.Active)
	}
}

func TestRoomScenario(t *testing.T) {
	srv := newTestServer(t, nil)

	doJSON(t, srv, http.MethodPost, "/user", `{"user":"alice"}`)
	doJSON(t, srv, http.MethodPost, "/user", `{"user":"bob"}`)
	doJSON(t, srv, http.MethodPost, "/message", `{"user":"alice","msg":"hi"}`)
	doJSON(t, srv, http.MethodDelete, "/user", `{"user":"bob"}`)

	w := doJSON(t, srv, http.MethodGet, "/users", "")
	var users []string
	if err := json.NewDecoder(w.Body).Decode(&users); err != nil {
		t.Fatalf("failed to decode users: %v", err)
	}
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected [alice], got %v", users)
	}

	w = doJSON(t, srv, http.MethodGet, "/messages", "")
	var msgs []message.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	tail := msgs[len(msgs)-1]
	if tail.Text != "bob just left the chat room" {
		t.Fatalf("expected leave notice as tail, got %q", tail.Text)
	}
}
