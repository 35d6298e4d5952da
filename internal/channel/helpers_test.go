package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"botgateway/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statusCall struct {
	MessageID string
	Status    domain.MessageStatus
	Millis    int64
}

// recordingManager records every collaborator call in order.
type recordingManager struct {
	mu       sync.Mutex
	received []domain.InboundEvent
	statuses []statusCall
	order    []string
}

func (m *recordingManager) ReceiveMessage(_ context.Context, channelID string, ev domain.InboundEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, ev)
	m.order = append(m.order, "receive:"+ev.MessageID)
	return nil
}

func (m *recordingManager) UpdateMessageStatus(_ context.Context, id string, status domain.MessageStatus, millis int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusCall{id, status, millis})
	m.order = append(m.order, "status:"+id)
	return nil
}

type mapStore map[string]*domain.Channel

func (s mapStore) FindByBusinessAccountID(_ context.Context, id string) (*domain.Channel, error) {
	if ch, ok := s[id]; ok {
		return ch, nil
	}
	return nil, domain.ErrChannelNotFound
}

// capturedRequest is one request seen by a fake Graph server.
type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

// graphServer answers every request with status and body, recording what
// it saw.
type graphServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
}

func newGraphServer(t *testing.T, status int, body string) *graphServer {
	t.Helper()
	g := &graphServer{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &req.Body)
		}
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(g.Close)
	return g
}

func (g *graphServer) last() capturedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return capturedRequest{}
	}
	return g.requests[len(g.requests)-1]
}

func (g *graphServer) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func graphConfig(baseURL string) GraphConfig {
	return GraphConfig{BaseURL: baseURL, MaxRetries: 0, Logger: testLogger()}
}
