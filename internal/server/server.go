// Package server mounts the gateway on HTTP: platform webhooks, the send
// endpoint, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"botgateway/internal/channel"
	"botgateway/internal/domain"
	"botgateway/internal/gateway"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultMaxBody = 1 << 20 // 1MB

type Config struct {
	Addr         string
	Gateway      *gateway.Gateway
	Metrics      http.Handler // nil disables /metrics
	MetricsPath  string
	Health       func(ctx context.Context) error
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	Logger       *slog.Logger
}

type Server struct {
	addr        string
	gw          *gateway.Gateway
	metrics     http.Handler
	metricsPath string
	health      func(ctx context.Context) error
	maxBody     int64
	readTimeout time.Duration
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
}

func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		addr:        cfg.Addr,
		gw:          cfg.Gateway,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		health:      cfg.Health,
		maxBody:     cfg.MaxBodyBytes,
		readTimeout: cfg.ReadTimeout,
		logger:      cfg.Logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics)
	}

	r.Route("/webhooks/{type}", func(r chi.Router) {
		r.Get("/", s.handleChallenge)
		r.Post("/", s.handleWebhook)
		r.Get("/{channelID}", s.handleChannelChallenge)
		r.Post("/{channelID}", s.handleChannelWebhook)
	})

	r.Post("/channels/{id}/messages", s.handleSend)
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("http server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "channels": s.gw.Types()})
}

// --- webhooks ---

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	t := domain.ChannelType(chi.URLParam(r, "type"))
	challenge, ok := s.gw.HandleChallenge(t, r.URL.Query())
	writeChallenge(w, challenge, ok)
}

func (s *Server) handleChannelChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, ok := s.gw.HandleChannelChallenge(r.Context(), chi.URLParam(r, "channelID"), r.URL.Query())
	writeChallenge(w, challenge, ok)
}

func writeChallenge(w http.ResponseWriter, challenge string, ok bool) {
	if !ok {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	t := domain.ChannelType(chi.URLParam(r, "type"))
	req, ok := s.readWebhook(w, r)
	if !ok {
		return
	}
	events, err := s.gw.HandleWebhook(r.Context(), t, req)
	s.respondWebhook(w, t, req, events, err)
}

func (s *Server) handleChannelWebhook(w http.ResponseWriter, r *http.Request) {
	t := domain.ChannelType(chi.URLParam(r, "type"))
	req, ok := s.readWebhook(w, r)
	if !ok {
		return
	}
	events, err := s.gw.HandleChannelWebhook(r.Context(), chi.URLParam(r, "channelID"), req)
	s.respondWebhook(w, t, req, events, err)
}

func (s *Server) readWebhook(w http.ResponseWriter, r *http.Request) (domain.WebhookRequest, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "Bad Request", http.StatusBadRequest)
		}
		return domain.WebhookRequest{}, false
	}
	return domain.WebhookRequest{Body: body, Headers: r.Header.Clone()}, true
}

// respondWebhook answers 200 once the payload is verified, whatever happened
// to individual sub-events.
func (s *Server) respondWebhook(w http.ResponseWriter, t domain.ChannelType, req domain.WebhookRequest, events []domain.InboundEvent, err error) {
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	case errors.Is(err, domain.ErrProviderNotFound), errors.Is(err, domain.ErrChannelNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("webhook handling failed", "provider", t, "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if t == domain.ChannelDiscord {
		if resp, ok := channel.InteractionResponse(req.Body); ok {
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "events": len(events)})
}

// --- send ---

type sendRequest struct {
	To      string             `json:"to"`
	Type    domain.MessageType `json:"type"`
	Body    json.RawMessage    `json:"body"`
	Options domain.SendOptions `json:"options"`
}

type bodyDecoder func(raw json.RawMessage, t domain.MessageType) (domain.MessageBody, error)

func decodeInto[B domain.MessageBody]() bodyDecoder {
	return func(raw json.RawMessage, _ domain.MessageType) (domain.MessageBody, error) {
		var b B
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, err
			}
		}
		return b, nil
	}
}

func decodeMedia(raw json.RawMessage, t domain.MessageType) (domain.MessageBody, error) {
	var b domain.MediaBody
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
	}
	b.Kind = t
	return b, nil
}

var bodyDecoders = map[domain.MessageType]bodyDecoder{
	domain.MessageText:        decodeInto[domain.TextBody](),
	domain.MessageImage:       decodeMedia,
	domain.MessageVideo:       decodeMedia,
	domain.MessageAudio:       decodeMedia,
	domain.MessageDocument:    decodeMedia,
	domain.MessageTemplate:    decodeInto[domain.TemplateBody](),
	domain.MessageButton:      decodeInto[domain.ButtonBody](),
	domain.MessageQuickReply:  decodeInto[domain.QuickReplyBody](),
	domain.MessageInteractive: decodeInto[domain.InteractiveBody](),
	domain.MessageReaction:    decodeInto[domain.ReactionBody](),
	domain.MessageTyping:      decodeInto[domain.TypingBody](),
	domain.MessageThread:      decodeInto[domain.ThreadBody](),
	domain.MessageEmbed:       decodeInto[domain.EmbedBody](),
	domain.MessageLocation:    decodeInto[domain.LocationBody](),
}

// decodeSend builds an outbound message from the request body.
func decodeSend(data []byte) (domain.OutboundMessage, error) {
	var req sendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.OutboundMessage{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if req.To == "" {
		return domain.OutboundMessage{}, errors.New("to is required")
	}
	if req.Type == "" {
		req.Type = domain.MessageText
	}
	decode, ok := bodyDecoders[req.Type]
	if !ok {
		return domain.OutboundMessage{}, &domain.UnsupportedMessageTypeError{Type: req.Type}
	}
	body, err := decode(req.Body, req.Type)
	if err != nil {
		return domain.OutboundMessage{}, fmt.Errorf("invalid %s body: %w", req.Type, err)
	}
	return domain.OutboundMessage{To: req.To, Body: body, Options: req.Options}, nil
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := decodeSend(data)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrUnsupportedMessageType) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}

	channelID := chi.URLParam(r, "id")
	res, err := s.gw.SendToChannel(r.Context(), channelID, msg)
	if err != nil {
		writeError(w, sendErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func sendErrorStatus(err error) int {
	var netErr *domain.NetworkError
	switch {
	case errors.Is(err, domain.ErrChannelNotFound), errors.Is(err, domain.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedMessageType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusFailedDependency
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
