package twin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sentrygrid/twinctl/internal/health"
	"github.com/sentrygrid/twinctl/internal/logger"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/twinerr"
)

// RedisStore is the persistent Store backing production deployments:
// pool-tuned connection setup and TxPipeline-based atomic multi-key writes.
// Every redis error is reported as a failure to gate, the infrastructure
// health gate's view of this store's reachability; see wrap for which
// calls report successes.
type RedisStore struct {
	client    *redis.Client
	namespace string
	gate      *health.Gate
	log       logger.ComponentLogger
}

// NewRedisStore connects to redisURL with production-grade pool tuning.
// gate may be nil, in which case reachability is not reported anywhere.
func NewRedisStore(redisURL, namespace string, gate *health.Gate, log logger.ComponentLogger) (*RedisStore, error) {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("twin: parsing redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 5
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 1 * time.Second
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second
	opts.PoolTimeout = 10 * time.Second

	client := redis.NewClient(opts)

	if namespace == "" {
		namespace = "twinctl"
	}
	return &RedisStore{client: client, namespace: namespace, gate: gate, log: log.WithComponent("twin.redis")}, nil
}

const healthComponent = "twin_store"

func (s *RedisStore) key(parts ...string) string {
	k := s.namespace
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) intentKey(id model.DeviceId) string   { return s.key("intent", id.String()) }
func (s *RedisStore) reportedKey(id model.DeviceId) string { return s.key("reported", id.String()) }
func (s *RedisStore) desiredKey(id model.DeviceId) string  { return s.key("desired", id.String()) }
func (s *RedisStore) activityKey(id model.DeviceId) string { return s.key("activity", id.String()) }
func (s *RedisStore) indexKey() string                     { return s.key("index", "active-outputs") }

func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, id model.DeviceId) {
	pipe.Set(ctx, s.activityKey(id), time.Now().Format(time.RFC3339Nano), 0)
}

func (s *RedisStore) SaveUserIntent(ctx context.Context, intent model.UserIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("twin: marshaling intent: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.intentKey(intent.Id), data, 0)
		s.touch(ctx, pipe, intent.Id)
		return nil
	})
	return s.wrap("twin.SaveUserIntent", intent.Id.String(), err)
}

func (s *RedisStore) FindUserIntent(ctx context.Context, id model.DeviceId) (*model.UserIntent, error) {
	var v model.UserIntent
	ok, err := s.getJSON(ctx, s.intentKey(id), &v)
	if err != nil || !ok {
		return nil, s.wrap("twin.FindUserIntent", id.String(), err)
	}
	if !v.Value.AgreesWithType(v.Type) {
		return nil, twinerr.New("twin.FindUserIntent", twinerr.KindInternal, id.String(), twinerr.ErrCorruptState)
	}
	return &v, nil
}

func (s *RedisStore) SaveReportedState(ctx context.Context, state model.ReportedDeviceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("twin: marshaling reported state: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.reportedKey(state.Id), data, 0)
		s.touch(ctx, pipe, state.Id)
		return nil
	})
	return s.wrap("twin.SaveReportedState", state.Id.String(), err)
}

func (s *RedisStore) FindReportedState(ctx context.Context, id model.DeviceId) (*model.ReportedDeviceState, error) {
	var v model.ReportedDeviceState
	ok, err := s.getJSON(ctx, s.reportedKey(id), &v)
	if err != nil || !ok {
		return nil, s.wrap("twin.FindReportedState", id.String(), err)
	}
	return &v, nil
}

func (s *RedisStore) SaveDesiredState(ctx context.Context, desired model.DesiredDeviceState) error {
	if !desired.Value.AgreesWithType(desired.Type) {
		return twinerr.New("twin.SaveDesiredState", twinerr.KindInternal, desired.Id.String(), twinerr.ErrCorruptState)
	}
	data, err := json.Marshal(desired)
	if err != nil {
		return fmt.Errorf("twin: marshaling desired state: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.desiredKey(desired.Id), data, 0)
		s.touch(ctx, pipe, desired.Id)
		if desired.Type.IsOutput() {
			pipe.SAdd(ctx, s.indexKey(), desired.Id.String())
		}
		return nil
	})
	return s.wrap("twin.SaveDesiredState", desired.Id.String(), err)
}

func (s *RedisStore) FindDesiredState(ctx context.Context, id model.DeviceId) (*model.DesiredDeviceState, error) {
	var v model.DesiredDeviceState
	ok, err := s.getJSON(ctx, s.desiredKey(id), &v)
	if err != nil || !ok {
		return nil, s.wrap("twin.FindDesiredState", id.String(), err)
	}
	if !v.Value.AgreesWithType(v.Type) {
		return nil, twinerr.New("twin.FindDesiredState", twinerr.KindInternal, id.String(), twinerr.ErrCorruptState)
	}
	return &v, nil
}

func (s *RedisStore) FindAllActiveOutputDevices(ctx context.Context) ([]model.DesiredDeviceState, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, s.wrap("twin.FindAllActiveOutputDevices", "", err)
	}
	out := make([]model.DesiredDeviceState, 0, len(keys))
	for _, k := range keys {
		id, perr := model.ParseDeviceId(k)
		if perr != nil {
			continue
		}
		d, derr := s.FindDesiredState(ctx, id)
		if derr != nil || d == nil {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

// FindTwinSnapshot reads all three keys within a single pipeline
// round-trip, matching the "best-effort atomic read" requirement.
func (s *RedisStore) FindTwinSnapshot(ctx context.Context, id model.DeviceId) (model.DeviceTwinSnapshot, error) {
	snap := model.DeviceTwinSnapshot{Id: id}

	cmds, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Get(ctx, s.intentKey(id))
		pipe.Get(ctx, s.desiredKey(id))
		pipe.Get(ctx, s.reportedKey(id))
		return nil
	})
	if err != nil && err != redis.Nil {
		return snap, s.wrap("twin.FindTwinSnapshot", id.String(), err)
	}

	if b, ok := bytesOf(cmds[0]); ok {
		var v model.UserIntent
		if json.Unmarshal(b, &v) == nil {
			snap.Intent = &v
		}
	}
	if b, ok := bytesOf(cmds[1]); ok {
		var v model.DesiredDeviceState
		if json.Unmarshal(b, &v) == nil {
			snap.Desired = &v
		}
	}
	if b, ok := bytesOf(cmds[2]); ok {
		var v model.ReportedDeviceState
		if json.Unmarshal(b, &v) == nil {
			snap.Reported = &v
		}
	}
	return snap, nil
}

func bytesOf(cmd redis.Cmder) ([]byte, bool) {
	sc, ok := cmd.(*redis.StringCmd)
	if !ok {
		return nil, false
	}
	b, err := sc.Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *RedisStore) FindLastActivity(ctx context.Context, id model.DeviceId) (*time.Time, error) {
	v, err := s.client.Get(ctx, s.activityKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("twin.FindLastActivity", id.String(), err)
	}
	t, perr := time.Parse(time.RFC3339Nano, v)
	if perr != nil {
		return nil, nil
	}
	return &t, nil
}

func (s *RedisStore) DeleteDevice(ctx context.Context, id model.DeviceId) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.intentKey(id), s.reportedKey(id), s.desiredKey(id), s.activityKey(id))
		pipe.SRem(ctx, s.indexKey(), id.String())
		return nil
	})
	return s.wrap("twin.DeleteDevice", id.String(), err)
}

func (s *RedisStore) IndexOutputDevice(ctx context.Context, id model.DeviceId) error {
	err := s.client.SAdd(ctx, s.indexKey(), id.String()).Err()
	return s.wrap("twin.IndexOutputDevice", id.String(), err)
}

func (s *RedisStore) RemoveFromIndex(ctx context.Context, id model.DeviceId) error {
	err := s.client.SRem(ctx, s.indexKey(), id.String()).Err()
	return s.wrap("twin.RemoveFromIndex", id.String(), err)
}

func (s *RedisStore) GetAllIndexedDeviceKeys(ctx context.Context) ([]model.DeviceId, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, s.wrap("twin.GetAllIndexedDeviceKeys", "", err)
	}
	out := make([]model.DeviceId, 0, len(keys))
	for _, k := range keys {
		id, perr := model.ParseDeviceId(k)
		if perr == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

// wrap classifies a raw redis error as infrastructure-down and reports it
// to the health gate; a nil err is reported as a success. Every redis
// error passes through here. Successes are reported by the writes, the
// index updates, and by FindUserIntent/FindReportedState/FindDesiredState
// when the key is absent; reads that return data, and successful
// snapshot, activity and index-listing reads, report nothing.
func (s *RedisStore) wrap(op, id string, err error) error {
	reported := health.Observe(s.gate, healthComponent, func(error) bool { return true }, func() error { return err })
	if reported == nil {
		return nil
	}
	return twinerr.InfraDown(op, id, reported)
}

var _ Store = (*RedisStore)(nil)
