package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"botgateway/internal/domain"
	"botgateway/internal/ratelimit"
)

// Registry maps channel types to providers and resolves multi-tenant
// account ids to local channels.
type Registry struct {
	mu        sync.RWMutex
	providers map[domain.ChannelType]domain.Provider
	store     domain.ChannelStore
	logger    *slog.Logger
}

func NewRegistry(store domain.ChannelStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[domain.ChannelType]domain.Provider),
		store:     store,
		logger:    logger,
	}
}

// RegistryConfig configures the four built-in providers.
type RegistryConfig struct {
	Graph   GraphConfig
	Discord ratelimit.Config
	Store   domain.ChannelStore
	Logger  *slog.Logger
}

// NewDefaultRegistry builds a registry holding Facebook, Instagram, WhatsApp
// and Discord.
func NewDefaultRegistry(cfg RegistryConfig) *Registry {
	r := NewRegistry(cfg.Store, cfg.Logger)
	meta := MetaConfig{Graph: cfg.Graph, Store: cfg.Store, Logger: r.logger}
	r.Register(NewFacebook(meta))
	r.Register(NewInstagram(meta))
	r.Register(NewWhatsApp(WhatsAppConfig{Graph: cfg.Graph, Store: cfg.Store, Logger: r.logger}))
	r.Register(NewDiscord(DiscordConfig{
		Store:     cfg.Store,
		RateLimit: cfg.Discord,
		Timeout:   cfg.Graph.Timeout,
		Logger:    r.logger,
	}))
	return r
}

func (r *Registry) Register(p domain.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Type()] = p
	r.logger.Debug("registered provider", "provider", p.Type())
}

func (r *Registry) Get(t domain.ChannelType) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, t)
	}
	return p, nil
}

// ForChannel returns the provider serving ch.
func (r *Registry) ForChannel(ch *domain.Channel) (domain.Provider, error) {
	if ch == nil {
		return nil, domain.ErrChannelNotFound
	}
	return r.Get(ch.Type)
}

// Resolve maps an inbound account id (page, Instagram account, WABA or
// guild) to its provider and local channel.
func (r *Registry) Resolve(ctx context.Context, t domain.ChannelType, accountID string) (domain.Provider, *domain.Channel, error) {
	p, err := r.Get(t)
	if err != nil {
		return nil, nil, err
	}
	if r.store == nil {
		return nil, nil, fmt.Errorf("resolve %s account %s: %w", t, accountID, domain.ErrChannelNotFound)
	}
	ch, err := r.store.FindByBusinessAccountID(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s account %s: %w", t, accountID, err)
	}
	if ch == nil || ch.Type != t {
		return nil, nil, fmt.Errorf("resolve %s account %s: %w", t, accountID, domain.ErrChannelNotFound)
	}
	return p, ch, nil
}

// Types returns the registered channel types in sorted order.
func (r *Registry) Types() []domain.ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.ChannelType, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
