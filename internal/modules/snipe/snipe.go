// Package snipe keeps the most recently deleted and edited messages of each
// channel so moderators can look at them afterwards.
package snipe

import (
	"sync"
	"time"

	"spanner/internal/utils"
)

const DefaultCapacity = 1000

type Kind string

const (
	Deleted Kind = "deleted"
	Edited  Kind = "edited"
)

type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Author    string
	Content   string
	// Before is the content prior to an edit.
	Before    string
	Links     []string
	CreatedAt time.Time
	SnipedAt  time.Time
}

type Stats struct {
	Channels int
	Messages int
}

// Cache holds one bounded buffer per channel and kind.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	deleted  map[string]*utils.Ring[Message]
	edited   map[string]*utils.Ring[Message]
	now      func() time.Time
}

func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		deleted:  make(map[string]*utils.Ring[Message]),
		edited:   make(map[string]*utils.Ring[Message]),
		now:      time.Now,
	}
}

func (c *Cache) RecordDeleted(msg Message) {
	msg.Links = utils.CleanLinks(msg.Content)
	msg.SnipedAt = c.now()
	c.ring(c.deleted, msg.ChannelID).Push(msg)
}

func (c *Cache) RecordEdited(before, after Message) {
	if before.Content == after.Content {
		return
	}
	after.Before = before.Content
	after.Links = utils.CleanLinks(before.Content + "\n" + after.Content)
	after.SnipedAt = c.now()
	c.ring(c.edited, after.ChannelID).Push(after)
}

// List returns the channel's snipes of the given kind, newest first.
func (c *Cache) List(kind Kind, channelID string) []Message {
	c.mu.RLock()
	ring, ok := c.buffers(kind)[channelID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return ring.Newest()
}

// Forget drops everything held for a channel.
func (c *Cache) Forget(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deleted, channelID)
	delete(c.edited, channelID)
}

func (c *Cache) Stats(kind Kind) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buffers := c.buffers(kind)
	stats := Stats{Channels: len(buffers)}
	for _, ring := range buffers {
		stats.Messages += ring.Len()
	}
	return stats
}

func (c *Cache) buffers(kind Kind) map[string]*utils.Ring[Message] {
	if kind == Edited {
		return c.edited
	}
	return c.deleted
}

func (c *Cache) ring(buffers map[string]*utils.Ring[Message], channelID string) *utils.Ring[Message] {
	c.mu.RLock()
	ring, ok := buffers[channelID]
	c.mu.RUnlock()
	if ok {
		return ring
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ring, ok = buffers[channelID]; !ok {
		ring = utils.NewRing[Message](c.capacity)
		buffers[channelID] = ring
	}
	return ring
}
