// Package configstore implements the live control plane: a Redis-backed
// key-value document store holding per-analyzer weights and active
// flags, polled by the distributor and the analyzer admission gate.
//
// Schema (within the configured namespace):
//
//	<namespace>:weights              hash, field=analyzer name, value=weight (float, formatted as decimal string)
//	<namespace>:analyzers:<name>     string "true"/"false", the active flag
package configstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/arclight-systems/logdist/core"
)

const defaultNamespace = "logdist"

// Store is a thin Redis-backed client for the weights/active-flags
// control plane. It does not itself poll; callers periodically call
// Weights or IsActive, or use WatchWeights/WatchActive for a managed
// background poller.
type Store struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// Options configures a Store.
type Options struct {
	RedisURL  string
	Namespace string
	Logger    core.Logger
}

// New connects to Redis and returns a Store. The connection is verified
// with a short Ping before returning.
func New(opts Options) (*Store, error) {
	if opts.Namespace == "" {
		opts.Namespace = defaultNamespace
	}
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}

	redisOpts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, core.NewFrameworkError("configstore.New", "config", fmt.Errorf("invalid redis url: %w", err))
	}

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewFrameworkError("configstore.New", "discovery", fmt.Errorf("redis unreachable: %w", err))
	}

	return &Store{client: client, namespace: opts.Namespace, logger: opts.Logger}, nil
}

// NewFromClient wraps an already-constructed redis.Client, useful for
// tests that share one connection across Store and other Redis-backed
// components.
func NewFromClient(client *redis.Client, namespace string, logger core.Logger) *Store {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Store{client: client, namespace: namespace, logger: logger}
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) weightsKey() string {
	return fmt.Sprintf("%s:weights", s.namespace)
}

func (s *Store) activeKey(name string) string {
	return fmt.Sprintf("%s:analyzers:%s", s.namespace, name)
}

// Weights reads the current weights document. A missing document (the
// hash key does not exist) is reported via ok=false so callers can fall
// back to their last-known map.
func (s *Store) Weights(ctx context.Context) (values map[string]float64, ok bool, err error) {
	exists, err := s.client.Exists(ctx, s.weightsKey()).Result()
	if err != nil {
		return nil, false, fmt.Errorf("configstore: check weights existence: %w", err)
	}
	if exists == 0 {
		return nil, false, nil
	}

	raw, err := s.client.HGetAll(ctx, s.weightsKey()).Result()
	if err != nil {
		return nil, false, fmt.Errorf("configstore: read weights: %w", err)
	}

	values = make(map[string]float64, len(raw))
	for name, raw := range raw {
		f, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			continue
		}
		values[name] = f
	}
	return values, true, nil
}

// SetWeights replaces the weights document wholesale. Used by tests and
// by an operator-facing control surface; the dispatcher itself only
// reads weights.
func (s *Store) SetWeights(ctx context.Context, values map[string]float64) error {
	if len(values) == 0 {
		return s.client.Del(ctx, s.weightsKey()).Err()
	}
	fields := make(map[string]interface{}, len(values))
	for name, w := range values {
		fields[name] = strconv.FormatFloat(w, 'f', -1, 64)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.weightsKey())
		pipe.HSet(ctx, s.weightsKey(), fields)
		return nil
	})
	return err
}

// IsActive reads the active flag for the named analyzer. An absent key
// defaults to true.
func (s *Store) IsActive(ctx context.Context, name string) (bool, error) {
	v, err := s.client.Get(ctx, s.activeKey(name)).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("configstore: read active flag for %s: %w", name, err)
	}
	return v != "false", nil
}

// SetActive sets the active flag for the named analyzer.
func (s *Store) SetActive(ctx context.Context, name string, active bool) error {
	return s.client.Set(ctx, s.activeKey(name), strconv.FormatBool(active), 0).Err()
}

// WatchWeights starts a background goroutine that re-reads the weights
// document every interval and invokes onUpdate with the latest values.
// On a missing document or a read error, it logs and leaves the last
// known map in place (onUpdate is not called). The goroutine runs until
// ctx is done.
func (s *Store) WatchWeights(ctx context.Context, interval time.Duration, onUpdate func(map[string]float64)) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				values, ok, err := s.Weights(ctx)
				if err != nil {
					s.logger.Warn("weight poll failed", map[string]interface{}{"error": err.Error()})
					continue
				}
				if !ok {
					s.logger.Warn("no weights found in config store, retaining last known map", nil)
					continue
				}
				onUpdate(values)
			}
		}
	}()
}

// WatchActive starts a background goroutine that re-reads the active
// flag for name every interval and invokes onUpdate with the latest
// value. Read errors are logged and swallowed; the poller never stops
// on a transient failure. The goroutine runs until ctx is done.
func (s *Store) WatchActive(ctx context.Context, name string, interval time.Duration, onUpdate func(bool)) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				active, err := s.IsActive(ctx, name)
				if err != nil {
					s.logger.Warn("active flag poll failed", map[string]interface{}{
						"analyzer": name,
						"error":    err.Error(),
					})
					continue
				}
				onUpdate(active)
			}
		}
	}()
}
