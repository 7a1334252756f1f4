// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package limiter counts attempts per key in fixed Redis windows.
package limiter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/config"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "readinglog:limit:"

// Rule bounds the number of attempts within a window. A zero Max disables
// the rule.
type Rule struct {
	Max    int
	Window time.Duration
}

// Rules are the limits applied by the workflow services.
type Rules struct {
	Login   Rule // failed logins per email
	Confirm Rule // code submissions per purpose and email
	Resend  Rule // code requests per purpose and email
}

// RulesFromConfig builds Rules from the configured limits.
func RulesFromConfig(cfg *config.LimitsConfig) Rules {
	return Rules{
		Login:   Rule{Max: cfg.LoginMax, Window: cfg.LoginWindow},
		Confirm: Rule{Max: cfg.ConfirmMax, Window: cfg.ConfirmWindow},
		Resend:  Rule{Max: cfg.ResendMax, Window: cfg.ResendWindow},
	}
}

// Limiter is a fixed-window attempt counter. A nil Limiter or one without
// a client allows everything. Redis failures are logged and allow the
// attempt.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a Limiter on client. client may be nil.
func New(client redis.UniversalClient) *Limiter {
	return &Limiter{redis: client}
}

func (l *Limiter) enabled(rule Rule) bool {
	return l != nil && l.redis != nil && rule.Max > 0 && rule.Window > 0
}

// Allow records an attempt for key and reports whether it is within rule.
func (l *Limiter) Allow(ctx context.Context, rule Rule, key string) bool {
	if !l.enabled(rule) {
		return true
	}

	count, err := l.Hit(ctx, rule, key)
	if err != nil {
		slog.Warn("limiter_unavailable", "key", key, "error", err)
		return true
	}
	return count <= int64(rule.Max)
}

// Hit increments the counter of key and returns the new count. The window
// starts with the first hit.
func (l *Limiter) Hit(ctx context.Context, rule Rule, key string) (int64, error) {
	if !l.enabled(rule) {
		return 0, nil
	}

	k := keyPrefix + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, rule.Window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Blocked reports whether key already used up its attempts, without
// recording a new one.
func (l *Limiter) Blocked(ctx context.Context, rule Rule, key string) bool {
	if !l.enabled(rule) {
		return false
	}

	count, err := l.redis.Get(ctx, keyPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		slog.Warn("limiter_unavailable", "key", key, "error", err)
		return false
	}
	return count >= int64(rule.Max)
}

// Reset clears the counter of key.
func (l *Limiter) Reset(ctx context.Context, key string) {
	if l == nil || l.redis == nil {
		return
	}
	if err := l.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		slog.Warn("limiter_unavailable", "key", key, "error", err)
	}
}
