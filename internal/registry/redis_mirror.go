package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lessonloop/chat-service/internal/config"
	"github.com/lessonloop/chat-service/pkg/log"
)

// RedisMirror keeps one TTL key per reachable identifier. A heartbeat
// loop refreshes the keys so a crashed process leaves nothing behind
// once the TTL lapses.
type RedisMirror struct {
	client            *redis.Client
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	online            map[string]struct{}
	mu                sync.RWMutex
	cancel            context.CancelFunc
}

func NewRedisMirror(cfg config.RedisConfig) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisMirror{
		client:            client,
		prefix:            cfg.KeyPrefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
		online:            make(map[string]struct{}),
	}, nil
}

func (r *RedisMirror) keyFor(identifier string) string {
	return fmt.Sprintf("%s:%s", r.prefix, identifier)
}

func (r *RedisMirror) SetOnline(ctx context.Context, identifier string) error {
	if err := r.client.Set(ctx, r.keyFor(identifier), time.Now().UTC().Format(time.RFC3339), r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to mirror online state: %w", err)
	}

	r.mu.Lock()
	r.online[identifier] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *RedisMirror) SetOffline(ctx context.Context, identifier string) error {
	r.mu.Lock()
	delete(r.online, identifier)
	r.mu.Unlock()

	if err := r.client.Del(ctx, r.keyFor(identifier)).Err(); err != nil {
		return fmt.Errorf("failed to clear mirrored state: %w", err)
	}
	return nil
}

func (r *RedisMirror) StartHeartbeat(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.heartbeatLoop(ctx)
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("presence mirror heartbeat started")
}

func (r *RedisMirror) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

func (r *RedisMirror) refreshKeys(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.online))
	for id := range r.online {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.client.Expire(ctx, r.keyFor(id), r.keyTTL).Err(); err != nil {
			l := log.L()
			l.Warn().Str(log.FieldUserID, id).Err(err).Msg("failed to refresh mirrored presence key")
		}
	}
}

func (r *RedisMirror) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *RedisMirror) Close() error {
	r.StopHeartbeat()
	return r.client.Close()
}
