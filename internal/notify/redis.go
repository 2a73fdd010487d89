package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gigbot/discovery-service/internal/model"
)

// ChannelGigFound is the pub/sub channel new gigs are published on.
const ChannelGigFound = "EVENT_GIG_FOUND"

// Publisher is the part of *redis.Client the RedisPublisher needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes an EVENT_GIG_FOUND event per gig.
type RedisPublisher struct {
	rdb     Publisher
	channel string
}

// NewRedisPublisher publishes on ChannelGigFound.
func NewRedisPublisher(rdb Publisher) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: ChannelGigFound}
}

type gigEvent struct {
	Type string    `json:"type"`
	Gig  model.Gig `json:"gig"`
}

func (p *RedisPublisher) Notify(ctx context.Context, gig model.Gig) error {
	event, err := json.Marshal(gigEvent{Type: ChannelGigFound, Gig: gig})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ChannelGigFound, err)
	}
	if err := p.rdb.Publish(ctx, p.channel, event).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelGigFound, err)
	}
	return nil
}
