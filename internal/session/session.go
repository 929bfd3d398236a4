package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Session is an authenticated merchant session. Offline sessions are keyed by shop.
type Session struct {
	ID          string     `json:"id"`
	Shop        string     `json:"shop"`
	State       string     `json:"state"`
	IsOnline    bool       `json:"isOnline"`
	Scope       string     `json:"scope"`
	AccessToken string     `json:"accessToken"`
	Expires     *time.Time `json:"expires,omitempty"`
}

func OfflineID(shop string) string {
	return "offline_" + shop
}

// IsActive reports whether the session has a live token that covers scopes.
func (s *Session) IsActive(scopes []string, now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	if s.Expires != nil && !s.Expires.After(now) {
		return false
	}
	return s.HasScopes(scopes)
}

// HasScopes treats write_x as implying read_x, matching Admin API access rules.
func (s *Session) HasScopes(scopes []string) bool {
	granted := map[string]bool{}
	for _, g := range strings.Split(s.Scope, ",") {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		granted[g] = true
		if rest, ok := strings.CutPrefix(g, "write_"); ok {
			granted["read_"+rest] = true
		}
	}
	for _, want := range scopes {
		if !granted[strings.TrimSpace(want)] {
			return false
		}
	}
	return true
}

type Store interface {
	StoreSession(ctx context.Context, s *Session) error
	// LoadSession returns ErrNotFound when id is unknown.
	LoadSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	FindSessionsByShop(ctx context.Context, shop string) ([]*Session, error)
}

// TokenSealer encrypts access tokens before a store persists them.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// LoadOffline returns the offline session for shop.
func LoadOffline(ctx context.Context, store Store, shop string) (*Session, error) {
	return store.LoadSession(ctx, OfflineID(shop))
}

// DeleteShopSessions removes every session (offline and online) belonging to shop.
func DeleteShopSessions(ctx context.Context, store Store, shop string) (int, error) {
	sessions, err := store.FindSessionsByShop(ctx, shop)
	if err != nil {
		return 0, fmt.Errorf("find sessions for %s: %w", shop, err)
	}
	for _, s := range sessions {
		if err := store.DeleteSession(ctx, s.ID); err != nil {
			return 0, fmt.Errorf("delete session %s: %w", s.ID, err)
		}
	}
	return len(sessions), nil
}
