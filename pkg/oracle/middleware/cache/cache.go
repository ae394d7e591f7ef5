// Package cache memoises oracle answers in Redis so that repeated explorations
// of the same tree with the same knowledge cost nothing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"kcexplore/pkg/logx"
	"kcexplore/pkg/oracle/llm"
)

// Store keeps completion texts keyed by request fingerprint.
type Store struct {
	client *backend.Client
	logger *logx.Logger
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the expiration for cached answers. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to Redis at address.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "kcexplore:oracle:",
		logger: logx.NewLogger("cache"),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

type entry struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason,omitempty"`
}

// Key fingerprints a request: the model plus every message role and content.
func Key(model string, req llm.CompletionRequest) string {
	h := sha256.New()
	h.Write([]byte(model))
	for _, m := range req.Messages {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached answer. A miss is (zero, false, nil).
func (s *Store) Get(ctx context.Context, key string) (llm.CompletionResponse, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, backend.Nil) {
		return llm.CompletionResponse{}, false, nil
	}
	if err != nil {
		return llm.CompletionResponse{}, false, fmt.Errorf("failed to read cache: %w", err)
	}
	var e entry
	if err := json.Unmarshal(val, &e); err != nil {
		return llm.CompletionResponse{}, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return llm.CompletionResponse{Content: e.Content, StopReason: e.StopReason, Cached: true}, true, nil
}

// Put stores an answer under key.
func (s *Store) Put(ctx context.Context, key string, resp llm.CompletionResponse) error {
	data, err := json.Marshal(entry{Content: resp.Content, StopReason: resp.StopReason})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Middleware serves repeated requests from the store. Cache hits carry
// Cached=true and zero usage. Redis failures degrade to a direct call.
func Middleware(store *Store) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				key := Key(next.GetModelName(), req)

				resp, hit, err := store.Get(ctx, key)
				if err != nil {
					store.logger.Warn("cache lookup failed: %v", err)
				} else if hit {
					logx.Debug(ctx, "cache", "hit %s", key[:12])
					return resp, nil
				}

				resp, err = next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				if resp.Content != "" {
					if err := store.Put(ctx, key, resp); err != nil {
						store.logger.Warn("cache store failed: %v", err)
					}
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
