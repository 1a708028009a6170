// Package guildconf resolves per-guild configuration rows, creating them on
// first use and caching them in memory.
package guildconf

import (
	"context"
	"time"

	"spanner/internal/storage"

	"github.com/patrickmn/go-cache"
)

const (
	defaultTTL      = 5 * time.Minute
	cleanupInterval = 10 * time.Minute
)

// Store is the subset of storage.Store the accessor needs.
type Store interface {
	GetOrCreateGuild(ctx context.Context, guildID string) (storage.Guild, error)
	SetLogChannel(ctx context.Context, guildID, channelID string) error
	SetPrefix(ctx context.Context, guildID, prefix string) error
	SetSnipeDisabled(ctx context.Context, guildID string, disabled bool) error
}

type Accessor struct {
	store Store
	cache *cache.Cache
}

func New(store Store) *Accessor {
	return &Accessor{store: store, cache: cache.New(defaultTTL, cleanupInterval)}
}

// GetOrCreate returns the guild's configuration, inserting defaults the first
// time the guild is seen.
func (a *Accessor) GetOrCreate(ctx context.Context, guildID string) (storage.Guild, error) {
	if cached, ok := a.cache.Get(guildID); ok {
		return cached.(storage.Guild), nil
	}
	guild, err := a.store.GetOrCreateGuild(ctx, guildID)
	if err != nil {
		return storage.Guild{}, err
	}
	a.cache.SetDefault(guildID, guild)
	return guild, nil
}

func (a *Accessor) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	return a.update(ctx, guildID, func() error { return a.store.SetLogChannel(ctx, guildID, channelID) })
}

func (a *Accessor) SetPrefix(ctx context.Context, guildID, prefix string) error {
	return a.update(ctx, guildID, func() error { return a.store.SetPrefix(ctx, guildID, prefix) })
}

func (a *Accessor) SetSnipeDisabled(ctx context.Context, guildID string, disabled bool) error {
	return a.update(ctx, guildID, func() error { return a.store.SetSnipeDisabled(ctx, guildID, disabled) })
}

// Invalidate drops the cached row for guildID.
func (a *Accessor) Invalidate(guildID string) {
	a.cache.Delete(guildID)
}

func (a *Accessor) update(ctx context.Context, guildID string, apply func() error) error {
	if _, err := a.GetOrCreate(ctx, guildID); err != nil {
		return err
	}
	defer a.Invalidate(guildID)
	return apply()
}
