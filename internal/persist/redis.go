package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// DefaultRedisPrefix namespaces every key written by Redis.
const DefaultRedisPrefix = "sysmind:"

// RedisOptions configures a Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis stores samples in one sorted set per metric and baselines as JSON
// strings.
//
// Key layout, relative to the prefix:
//
//	samples:<metric>   sorted set, score = unix millis, member = "<unix nanos>:<value>"
//	metrics            set of metric names that have samples
//	baseline:<metric>  JSON-encoded baseline
//	baselines          set of metric names that have a baseline
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to the server at opts.Addr and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("persist: connect to redis %s: %w", opts.Addr, err)
	}
	return NewRedisFromClient(client, opts.Prefix), nil
}

// NewRedisFromClient wraps an existing client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) sampleKey(metric string) string   { return r.prefix + "samples:" + metric }
func (r *Redis) baselineKey(metric string) string { return r.prefix + "baseline:" + metric }
func (r *Redis) metricsKey() string               { return r.prefix + "metrics" }
func (r *Redis) baselinesKey() string             { return r.prefix + "baselines" }

func (r *Redis) SaveBaseline(ctx context.Context, b baseline.Baseline) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("persist: marshal baseline %s: %w", b.Metric, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.baselineKey(b.Metric), data, 0)
		pipe.SAdd(ctx, r.baselinesKey(), b.Metric)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: save baseline %s: %w", b.Metric, err)
	}
	return nil
}

func (r *Redis) LoadBaseline(ctx context.Context, metric string) (baseline.Baseline, bool, error) {
	data, err := r.client.Get(ctx, r.baselineKey(metric)).Bytes()
	if errors.Is(err, redis.Nil) {
		return baseline.Baseline{}, false, nil
	}
	if err != nil {
		return baseline.Baseline{}, false, fmt.Errorf("persist: load baseline %s: %w", metric, err)
	}
	var b baseline.Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return baseline.Baseline{}, false, fmt.Errorf("persist: decode baseline %s: %w", metric, err)
	}
	return b, true, nil
}

// ListBaselines returns all baselines sorted by metric name. Index entries
// whose baseline key has disappeared are skipped.
func (r *Redis) ListBaselines(ctx context.Context) ([]baseline.Baseline, error) {
	names, err := r.client.SMembers(ctx, r.baselinesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("persist: list baselines: %w", err)
	}
	out := make([]baseline.Baseline, 0, len(names))
	if len(names) == 0 {
		return out, nil
	}
	sort.Strings(names)

	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = r.baselineKey(n)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("persist: list baselines: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var b baseline.Baseline
		if err := json.Unmarshal([]byte(s), &b); err != nil {
			return nil, fmt.Errorf("persist: decode baseline %s: %w", names[i], err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *Redis) DeleteBaseline(ctx context.Context, metric string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.baselineKey(metric))
		pipe.SRem(ctx, r.baselinesKey(), metric)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: delete baseline %s: %w", metric, err)
	}
	return nil
}

func (r *Redis) AppendSample(ctx context.Context, s samples.Sample) error {
	member := strconv.FormatInt(s.Timestamp.UnixNano(), 10) + ":" + strconv.FormatFloat(s.Value, 'g', -1, 64)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.sampleKey(s.Metric), &redis.Z{
			Score:  float64(s.Timestamp.UnixMilli()),
			Member: member,
		})
		pipe.SAdd(ctx, r.metricsKey(), s.Metric)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: append sample %s: %w", s.Metric, err)
	}
	return nil
}

// QuerySamples returns the samples of metric inside rng, time-ascending.
func (r *Redis) QuerySamples(ctx context.Context, metric string, rng samples.Range) ([]samples.Sample, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !rng.From.IsZero() {
		by.Min = strconv.FormatInt(rng.From.UnixMilli(), 10)
	}
	if !rng.To.IsZero() {
		by.Max = strconv.FormatInt(rng.To.UnixMilli(), 10)
	}
	members, err := r.client.ZRangeByScore(ctx, r.sampleKey(metric), by).Result()
	if err != nil {
		return nil, fmt.Errorf("persist: query %s: %w", metric, err)
	}

	out := make([]samples.Sample, 0, len(members))
	for _, m := range members {
		s, err := parseMember(metric, m)
		if err != nil {
			return nil, fmt.Errorf("persist: query %s: %w", metric, err)
		}
		// Scores have millisecond resolution; trim to the exact range.
		if rng.Contains(s.Timestamp) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Prune removes samples older than before from every metric.
func (r *Redis) Prune(ctx context.Context, before time.Time) error {
	names, err := r.client.SMembers(ctx, r.metricsKey()).Result()
	if err != nil {
		return fmt.Errorf("persist: prune: %w", err)
	}
	upper := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, n := range names {
			pipe.ZRemRangeByScore(ctx, r.sampleKey(n), "-inf", upper)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: prune: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func parseMember(metric, m string) (samples.Sample, error) {
	ts, val, ok := strings.Cut(m, ":")
	if !ok {
		return samples.Sample{}, fmt.Errorf("malformed member %q", m)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return samples.Sample{}, fmt.Errorf("malformed timestamp in %q: %w", m, err)
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return samples.Sample{}, fmt.Errorf("malformed value in %q: %w", m, err)
	}
	return samples.Sample{Metric: metric, Timestamp: time.Unix(0, nanos).UTC(), Value: v}, nil
}
