package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/rueidis"
)

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// RedisPublisher publishes events as JSON on a Redis channel.
type RedisPublisher struct {
	client  rueidis.Client
	channel string
}

// NewRedisPublisher publishes on channel.
func NewRedisPublisher(client rueidis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", e.EventType(), err)
	}

	cmd := p.client.B().Publish().Channel(p.channel).Message(rueidis.BinaryString(data)).Build()
	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.EventType(), err)
	}
	return nil
}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// Events returns a copy of what was published.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the types of the published events, in order.
func (p *MemoryPublisher) Types() []Type {
	var out []Type
	for _, e := range p.Events() {
		out = append(out, e.EventType())
	}
	return out
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
