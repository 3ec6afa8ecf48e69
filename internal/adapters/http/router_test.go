package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/config"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/core/coretest"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/dkeye/watchparty/internal/store"
	json "github.com/goccy/go-json"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:   "test",
		Port:   8080,
		Secret: "router-secret",
		WS:     config.WSConfig{Path: "/ws", ReadLimit: 1024, SendBuffer: 4},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *app.Server) {
	t.Helper()
	reg := core.NewRegistry()
	srv := app.NewServer(reg, &app.Router{Peers: reg})
	users := store.NewMemoryStore(domain.User{ID: 1, Username: "ann", DisplayName: "Ann"})
	return SetupRouter(context.Background(), testConfig(), srv, users), srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthzSetsClientToken(t *testing.T) {
	h, _ := newTestRouter(t)
	w := get(t, h, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(w.Result().Cookies()) == 0 {
		t.Fatal("no session cookie issued")
	}
}

func TestUserLookup(t *testing.T) {
	h, _ := newTestRouter(t)
	cases := []struct {
		path string
		code int
	}{
		{"/api/users/1", http.StatusOK},
		{"/api/users/2", http.StatusNotFound},
		{"/api/users/abc", http.StatusBadRequest},
		{"/api/users/-4", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := get(t, h, tc.path); w.Code != tc.code {
			t.Fatalf("GET %s = %d, want %d", tc.path, w.Code, tc.code)
		}
	}

	var u domain.User
	if err := json.Unmarshal(get(t, h, "/api/users/1").Body.Bytes(), &u); err != nil {
		t.Fatal(err)
	}
	if u.Username != "ann" || u.DisplayName != "Ann" {
		t.Fatalf("user = %+v", u)
	}
}

func TestParticipantsEndpoint(t *testing.T) {
	h, srv := newTestRouter(t)
	c, err := srv.Open(coretest.NewConn())
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Bind(context.Background(), c, 42, domain.Participant{UserID: 3, Username: "cat"}); err != nil {
		t.Fatal(err)
	}

	w := get(t, h, "/api/sessions/42/participants")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		SessionID    int64                `json:"sessionId"`
		Participants []domain.Participant `json:"participants"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.SessionID != 42 || len(body.Participants) != 1 || body.Participants[0].UserID != 3 {
		t.Fatalf("body = %+v", body)
	}

	w = get(t, h, "/api/sessions/7/participants")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var empty map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &empty); err != nil {
		t.Fatal(err)
	}
	if list, ok := empty["participants"].([]any); !ok || len(list) != 0 {
		t.Fatalf("empty session body = %s", w.Body.String())
	}
}
