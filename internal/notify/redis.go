package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultChannelPrefix namespaces board channels on a shared Redis.
const DefaultChannelPrefix = "laneboard"

// Channel returns the pub/sub channel for a team's board.
func Channel(prefix, teamID string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return fmt.Sprintf("%s:board:%s", prefix, teamID)
}

// RedisSink publishes events on the team's channel.
type RedisSink struct {
	rc     *redis.Client
	prefix string
}

// NewRedisSink creates a sink publishing through rc.
func NewRedisSink(rc *redis.Client, prefix string) *RedisSink {
	return &RedisSink{rc: rc, prefix: prefix}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.rc.Publish(ctx, Channel(s.prefix, ev.Change.TeamID), data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// NewRedisClient builds a client from a redis:// URL or a bare host:port.
func NewRedisClient(addr string) (*redis.Client, error) {
	if !strings.Contains(addr, "://") {
		return redis.NewClient(&redis.Options{Addr: addr}), nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Subscribe calls handle for every event published on teamID's channel until
// ctx is done. A dropped subscription is re-established after a second.
func Subscribe(ctx context.Context, rc *redis.Client, prefix, teamID string, logger log.FieldLogger, handle func(Event)) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	channel := Channel(prefix, teamID)
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.WithError(err).Error("unable to parse board event")
					continue
				}
				handle(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.WithField("channel", channel).Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
