package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	stateCookieName = "shopify_app_state"
	stateKeyValue   = "state"
	stateKeyShop    = "shop"
	stateMaxAge     = 600
)

var ErrStateMismatch = errors.New("oauth state mismatch")

// StateStore keeps the OAuth nonce in a signed cookie between begin and callback.
type StateStore struct {
	store *sessions.CookieStore
}

func NewStateStore(secret string, secure bool) *StateStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &StateStore{store: store}
}

// Begin creates a fresh state for shop and writes it to the response cookie.
func (s *StateStore) Begin(w http.ResponseWriter, r *http.Request, shop string) (string, error) {
	state, err := randomState(24)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	// A stale or tampered cookie just yields a new empty session.
	sess, _ := s.store.New(r, stateCookieName)
	sess.Values[stateKeyValue] = state
	sess.Values[stateKeyShop] = shop
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}
	return state, nil
}

// Verify checks state and shop against the cookie and clears it. The cookie is
// single use whether or not it matches.
func (s *StateStore) Verify(w http.ResponseWriter, r *http.Request, shop, state string) error {
	sess, err := s.store.Get(r, stateCookieName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}

	expected, _ := sess.Values[stateKeyValue].(string)
	expectedShop, _ := sess.Values[stateKeyShop].(string)

	sess.Options.MaxAge = -1
	_ = sess.Save(r, w)

	if expected == "" || state == "" || expectedShop != shop {
		return ErrStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		return ErrStateMismatch
	}
	return nil
}

func randomState(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
