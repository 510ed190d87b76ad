package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/errand/internal/connwatch"
	"github.com/nugget/errand/internal/router"
)

type fakeTurns struct {
	mu    sync.Mutex
	calls []TurnRequest
	at    []time.Time
	reply string
}

func (f *fakeTurns) HandleTurn(_ context.Context, userID, text string, now time.Time) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, TurnRequest{UserID: userID, Message: text})
	f.at = append(f.at, now)
	return f.reply
}

func newTestServer(turns TurnHandler, rtr *router.Router) *httptest.Server {
	s := NewServer("", turns, rtr, nil)
	s.now = func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.FixedZone("CDT", -5*3600))
	}
	return httptest.NewServer(s.Handler())
}

func TestHandleTurn(t *testing.T) {
	turns := &fakeTurns{reply: `Added "Buy milk".`}
	ts := newTestServer(turns, nil)
	defer ts.Close()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReply  string
		wantErr    string
	}{
		{
			name:       "message",
			body:       `{"user_id": "+15125550100", "message": "buy milk"}`,
			wantStatus: http.StatusOK,
			wantReply:  `Added "Buy milk".`,
		},
		{
			name:       "missing user",
			body:       `{"message": "buy milk"}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "user_id is required",
		},
		{
			name:       "blank message",
			body:       `{"user_id": "u1", "message": "   "}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "message is required",
		},
		{
			name:       "not json",
			body:       `buy milk`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid JSON body",
		},
		{
			name:       "oversized",
			body:       `{"user_id": "u1", "message": "` + strings.Repeat("x", maxTurnBody) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/turns", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantErr != "" {
				var body struct {
					Error struct {
						Message string `json:"message"`
					} `json:"error"`
				}
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if body.Error.Message != tt.wantErr {
					t.Errorf("error = %q, want %q", body.Error.Message, tt.wantErr)
				}
				return
			}

			var got TurnResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Reply != tt.wantReply {
				t.Errorf("reply = %q, want %q", got.Reply, tt.wantReply)
			}
			if got.RequestID == "" {
				t.Error("request_id is empty")
			}
		})
	}

	if len(turns.calls) != 1 {
		t.Fatalf("HandleTurn calls = %d, want 1", len(turns.calls))
	}
	if turns.calls[0].UserID != "+15125550100" || turns.calls[0].Message != "buy milk" {
		t.Errorf("call = %+v", turns.calls[0])
	}
	if loc := turns.at[0].Location(); loc != time.UTC {
		t.Errorf("turn time location = %v, want UTC", loc)
	}
}

func TestHandleTurnWrongMethod(t *testing.T) {
	ts := newTestServer(&fakeTurns{}, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/turns")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(&fakeTurns{}, nil)
	defer ts.Close()

	for _, path := range []string{"/health", "/v1/version"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			var body map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body) == 0 {
				t.Error("empty body")
			}
		})
	}
}

func TestRouterEndpoints(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		ts := newTestServer(&fakeTurns{}, nil)
		defer ts.Close()
		resp, err := http.Get(ts.URL + "/v1/router/stats")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})

	t.Run("audit and explain", func(t *testing.T) {
		rtr := router.NewRouter(nil, router.Config{
			Models:       []router.Model{{Name: "m1", Provider: "test", SupportsTools: true, ContextWindow: 8000, Speed: 5, Quality: 5}},
			DefaultModel: "m1",
		})
		_, d := rtr.Route(context.Background(), router.Request{Query: "what's today", Stage: router.StageToolRound, NeedsTools: true})

		ts := newTestServer(&fakeTurns{}, rtr)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/v1/router/audit?limit=5")
		if err != nil {
			t.Fatalf("GET audit: %v", err)
		}
		var audit struct {
			Count int `json:"count"`
		}
		err = json.NewDecoder(resp.Body).Decode(&audit)
		resp.Body.Close()
		if err != nil || audit.Count != 1 {
			t.Errorf("audit count = %d (err %v), want 1", audit.Count, err)
		}

		resp, err = http.Get(ts.URL + "/v1/router/explain/" + d.RequestID)
		if err != nil {
			t.Fatalf("GET explain: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("explain status = %d", resp.StatusCode)
		}

		resp, err = http.Get(ts.URL + "/v1/router/explain/nope")
		if err != nil {
			t.Fatalf("GET explain: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("missing explain status = %d, want 404", resp.StatusCode)
		}
	})
}

type fakeHealth []connwatch.Status

func (f fakeHealth) Status() []connwatch.Status { return f }

func (f fakeHealth) Healthy() bool {
	for _, s := range f {
		if !s.Ready {
			return false
		}
	}
	return true
}

func TestHealthReportsDependencies(t *testing.T) {
	tests := []struct {
		name   string
		health fakeHealth
		want   string
	}{
		{"all ready", fakeHealth{{Name: "ollama", Ready: true}, {Name: "taskstore", Ready: true}}, "healthy"},
		{"provider down", fakeHealth{{Name: "ollama", LastError: "connection refused"}, {Name: "taskstore", Ready: true}}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("", &fakeTurns{}, nil, nil)
			s.SetHealth(tt.health)
			ts := httptest.NewServer(s.Handler())
			defer ts.Close()

			resp, err := http.Get(ts.URL + "/health")
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status code = %d, want 200", resp.StatusCode)
			}
			var body struct {
				Status   string             `json:"status"`
				Services []connwatch.Status `json:"services"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.want || len(body.Services) != 2 {
				t.Errorf("body = %+v, want status %q with 2 services", body, tt.want)
			}
		})
	}
}
