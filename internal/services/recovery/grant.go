// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/securecookie"
)

// GrantCookieName is the cookie carrying a recovery grant.
const GrantCookieName = "recovery_grant"

// DefaultGrantTTL bounds the time between code confirmation and choosing
// the new password.
const DefaultGrantTTL = 15 * time.Minute

// ErrGrantInvalid is returned for missing, forged, expired or used grants.
var ErrGrantInvalid = errors.New("invalid recovery grant")

// grant proves that the holder confirmed a recovery code for Email. It is
// bound to the session version of the account, so changing the password
// spends it.
type grant struct {
	Email   string `json:"email"`
	Version int    `json:"sv"`
	Expires int64  `json:"exp"`
}

type grantCodec struct {
	sc  *securecookie.SecureCookie
	ttl time.Duration
}

func newGrantCodec(hexKey string, ttl time.Duration, required bool) (*grantCodec, error) {
	var key []byte
	if hexKey == "" {
		if required {
			return nil, fmt.Errorf("recovery grant key is required")
		}
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating recovery grant key: %w", err)
		}
		slog.Warn("no recovery grant key configured, generated a random one")
	} else {
		var err error
		key, err = hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid recovery grant key: %w", err)
		}
		if len(key) < 32 {
			return nil, fmt.Errorf("invalid recovery grant key: must be at least 32 bytes")
		}
	}

	if ttl <= 0 {
		ttl = DefaultGrantTTL
	}

	sc := securecookie.New(key, nil)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(ttl.Seconds()))

	return &grantCodec{sc: sc, ttl: ttl}, nil
}

func (c *grantCodec) encode(g grant) (string, error) {
	return c.sc.Encode(GrantCookieName, g)
}

func (c *grantCodec) decode(value string, now time.Time) (*grant, error) {
	if value == "" {
		return nil, ErrGrantInvalid
	}
	var g grant
	if err := c.sc.Decode(GrantCookieName, value, &g); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGrantInvalid, err)
	}
	if now.UnixMilli() >= g.Expires {
		return nil, fmt.Errorf("%w: expired", ErrGrantInvalid)
	}
	return &g, nil
}
