// Package session keeps short per-conversation history in Redis so the
// pipeline can reflect follow-up questions against prior turns.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Turn is one question/answer exchange.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Route    string    `json:"route"`
	At       time.Time `json:"at"`
}

// HistoryConfig bounds how much is kept per session.
type HistoryConfig struct {
	// MaxTurns caps the list length; oldest turns are trimmed.
	MaxTurns int
	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration
	// KeyPrefix namespaces the Redis keys.
	KeyPrefix string
}

// DefaultHistoryConfig keeps 10 turns for 24 hours.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{MaxTurns: 10, TTL: 24 * time.Hour, KeyPrefix: "dormflow:session:"}
}

// History stores conversation turns as a Redis list per session id.
type History struct {
	rdb    redis.UniversalClient
	cfg    HistoryConfig
	logger *zap.Logger
}

// NewHistory wraps an open Redis client.
func NewHistory(rdb redis.UniversalClient, cfg HistoryConfig, logger *zap.Logger) *History {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dormflow:session:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{rdb: rdb, cfg: cfg, logger: logger}
}

func (h *History) key(sessionID string) string { return h.cfg.KeyPrefix + sessionID }

// Append records a finished turn and trims the list to MaxTurns.
func (h *History) Append(ctx context.Context, sessionID string, turn Turn) error {
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("session: marshal turn: %w", err)
	}
	key := h.key(sessionID)
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.LTrim(ctx, key, int64(-h.cfg.MaxTurns), -1)
	if h.cfg.TTL > 0 {
		pipe.Expire(ctx, key, h.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: append turn: %w", err)
	}
	return nil
}

// Recent returns up to n most recent turns in chronological order.
func (h *History) Recent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 {
		n = h.cfg.MaxTurns
	}
	raws, err := h.rdb.LRange(ctx, h.key(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: load turns: %w", err)
	}
	turns := make([]Turn, 0, len(raws))
	for _, raw := range raws {
		var t Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			h.logger.Warn("dropping unreadable turn", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear removes a session's history.
func (h *History) Clear(ctx context.Context, sessionID string) error {
	if err := h.rdb.Del(ctx, h.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}
