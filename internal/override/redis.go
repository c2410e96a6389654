package override

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/health"
	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/twinerr"
)

const healthComponent = "override_store"

// RedisStore backs production deployments. Writes use client.Watch plus
// TxPipelined so the optimistic-concurrency check and the write happen
// inside one watched transaction. Every operation reports its outcome to
// gate, the infrastructure health gate's view of this store's
// reachability.
type RedisStore struct {
	client    *redis.Client
	namespace string
	bus       *eventbus.Bus
	gate      *health.Gate
	log       logger.ComponentLogger
}

// NewRedisStore connects to redisURL with production-grade pool tuning.
// gate may be nil, in which case reachability is not reported anywhere.
func NewRedisStore(redisURL, namespace string, bus *eventbus.Bus, gate *health.Gate, log logger.ComponentLogger) (*RedisStore, error) {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("override: parsing redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 5
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 1 * time.Second

	if namespace == "" {
		namespace = "twinctl"
	}
	return &RedisStore{
		client:    redis.NewClient(opts),
		namespace: namespace,
		bus:       bus,
		gate:      gate,
		log:       log.WithComponent("override.redis"),
	}, nil
}

// wrap reports a raw redis error (nil or not) to the health gate and
// classifies a non-nil error as infrastructure-down. Conflict errors are
// passed through to the caller untouched — contention is not a store
// reachability problem and must not trip the gate.
func (s *RedisStore) wrap(op, targetId string, err error) error {
	if twinerr.IsConflict(err) {
		return err
	}
	reported := health.Observe(s.gate, healthComponent, func(error) bool { return true }, func() error { return err })
	if reported == nil {
		return nil
	}
	return twinerr.InfraDown(op, targetId, reported)
}

func (s *RedisStore) key(targetId string, category model.OverrideCategory) string {
	return s.namespace + ":override:" + storeKey(targetId, category)
}

func (s *RedisStore) indexKey(targetId string, scope model.OverrideScope) string {
	return s.namespace + ":override-index:" + string(scope) + ":" + targetId
}

func (s *RedisStore) Put(ctx context.Context, ov model.Override) error {
	key := s.key(ov.TargetId, ov.Category)

	txf := func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			if ov.Version != 0 {
				return twinerr.Conflict("override.Put", key)
			}
			ov.Version = 1
		case err != nil:
			return err
		default:
			var cur model.Override
			if uerr := json.Unmarshal(existing, &cur); uerr != nil {
				return uerr
			}
			if ov.Version != cur.Version {
				return twinerr.Conflict("override.Put", key)
			}
			ov.Version = cur.Version + 1
		}

		data, merr := json.Marshal(ov)
		if merr != nil {
			return merr
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.indexKey(ov.TargetId, ov.Scope), string(ov.Category))
			return nil
		})
		return err
	}

	if err := s.wrap("override.Put", key, s.client.Watch(ctx, txf, key)); err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Publish(model.Event{
			Type: model.EventOverrideChanged,
			At:   time.Now(),
			Payload: model.OverrideChangedPayload{TargetId: ov.TargetId, Category: ov.Category},
		})
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, targetId string, category model.OverrideCategory) (*model.Override, error) {
	b, err := s.client.Get(ctx, s.key(targetId, category)).Bytes()
	if err == redis.Nil {
		s.wrap("override.Get", targetId, nil)
		return nil, nil
	}
	if err := s.wrap("override.Get", targetId, err); err != nil {
		return nil, err
	}
	var v model.Override
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *RedisStore) Delete(ctx context.Context, targetId string, category model.OverrideCategory) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(targetId, category))
		return nil
	})
	if err := s.wrap("override.Delete", targetId, err); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(model.Event{
			Type:    model.EventOverrideChanged,
			At:      time.Now(),
			Payload: model.OverrideChangedPayload{TargetId: targetId, Category: category},
		})
	}
	return nil
}

func (s *RedisStore) ListForTarget(ctx context.Context, targetId string, scope model.OverrideScope, now time.Time) ([]model.Override, error) {
	cats, err := s.client.SMembers(ctx, s.indexKey(targetId, scope)).Result()
	if err := s.wrap("override.ListForTarget", targetId, err); err != nil {
		return nil, err
	}
	var out []model.Override
	for _, c := range cats {
		ov, gerr := s.Get(ctx, targetId, model.OverrideCategory(c))
		if gerr != nil || ov == nil {
			continue
		}
		if ov.IsExpired(now) {
			continue
		}
		out = append(out, *ov)
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)
