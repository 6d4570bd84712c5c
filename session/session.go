// Package session keeps signed-in principals in an HMAC signed cookie and
// serves them as the fallback authenticator for token authentication.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/apperr"
	"github.com/devmarvs/tokenauth/config"
	"github.com/devmarvs/tokenauth/entity"
)

var (
	// ErrInvalidCookie indicates an invalid or tampered session cookie.
	ErrInvalidCookie = errors.New("invalid session cookie")
	// ErrKeyRequired indicates a store without a signing key.
	ErrKeyRequired = errors.New("session key required")
)

// Options configures a Store.
type Options struct {
	Name string
	Key  []byte
	// OldKeys still verify cookies but never sign new ones.
	OldKeys  [][]byte
	Path     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// Entry is a signed-in principal.
type Entry struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier,omitempty"`
}

// Store stores signed-in principals, one per principal type.
type Store struct {
	name     string
	keys     [][]byte
	path     string
	maxAge   time.Duration
	secure   bool
	sameSite http.SameSite
}

// New creates a store with key rotation support.
func New(options Options) (*Store, error) {
	if len(options.Key) == 0 {
		return nil, ErrKeyRequired
	}
	if options.Name == "" {
		options.Name = "tokenauth_session"
	}
	if options.Path == "" {
		options.Path = "/"
	}
	if options.SameSite == 0 {
		options.SameSite = http.SameSiteLaxMode
	}

	keys := make([][]byte, 0, 1+len(options.OldKeys))
	keys = append(keys, options.Key)
	keys = append(keys, options.OldKeys...)

	return &Store{
		name:     options.Name,
		keys:     keys,
		path:     options.Path,
		maxAge:   options.MaxAge,
		secure:   options.Secure,
		sameSite: options.SameSite,
	}, nil
}

// FromConfig creates a store from the session section of the app config.
func FromConfig(cfg config.SessionConfig) (*Store, error) {
	oldKeys := make([][]byte, 0, len(cfg.OldKeys))
	for _, key := range cfg.OldKeys {
		oldKeys = append(oldKeys, []byte(key))
	}
	return New(Options{
		Name:    cfg.CookieName,
		Key:     []byte(cfg.Key),
		OldKeys: oldKeys,
		Secure:  cfg.Secure,
	})
}

// SignIn records principal in the session cookie, keeping principals of
// other types signed in.
func (s *Store) SignIn(w http.ResponseWriter, r *http.Request, principal *tokenauth.Principal) error {
	if principal == nil || principal.Type == "" {
		return errors.New("session: principal type required")
	}

	entries, err := s.load(r)
	if err != nil && !errors.Is(err, ErrInvalidCookie) {
		return err
	}
	entries[entity.Underscore(principal.Type)] = Entry{ID: principal.ID, Identifier: principal.Identifier}
	return s.save(w, entries)
}

// SignOut removes the principal of the given type. The cookie is expired
// once no principal remains.
func (s *Store) SignOut(w http.ResponseWriter, r *http.Request, principalType string) error {
	entries, err := s.load(r)
	if err != nil && !errors.Is(err, ErrInvalidCookie) {
		return err
	}
	delete(entries, entity.Underscore(principalType))
	if len(entries) == 0 {
		s.clear(w)
		return nil
	}
	return s.save(w, entries)
}

// Principal returns the signed-in principal of the given type, or nil.
func (s *Store) Principal(r *http.Request, principalType string) (*tokenauth.Principal, error) {
	entries, err := s.load(r)
	if err != nil {
		return nil, err
	}
	entry, ok := entries[entity.Underscore(principalType)]
	if !ok || entry.ID == "" {
		return nil, nil
	}
	return &tokenauth.Principal{
		ID:         entry.ID,
		Type:       entity.Camelize(principalType),
		Identifier: entry.Identifier,
	}, nil
}

// Authenticator requires a signed-in principal of the given type.
func (s *Store) Authenticator(principalType string) tokenauth.Authenticator {
	return tokenauth.AuthenticatorFunc(func(ctx *tokenauth.Context) (*tokenauth.Principal, error) {
		principal, err := s.Principal(ctx.Request, principalType)
		if err != nil {
			return nil, apperr.Unauthorized("sign in required", err)
		}
		if principal == nil {
			return nil, apperr.Unauthorized("sign in required", nil)
		}
		return principal, nil
	})
}

func (s *Store) load(r *http.Request) (map[string]Entry, error) {
	entries := map[string]Entry{}
	cookie, err := r.Cookie(s.name)
	if err != nil {
		return entries, nil
	}
	payload, err := verify(cookie.Value, s.keys)
	if err != nil {
		return entries, err
	}
	if err := json.Unmarshal(payload, &entries); err != nil {
		return map[string]Entry{}, ErrInvalidCookie
	}
	return entries, nil
}

func (s *Store) save(w http.ResponseWriter, entries map[string]Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	cookie := s.cookie(signValue(payload, s.keys[0]))
	if s.maxAge > 0 {
		cookie.MaxAge = int(s.maxAge.Seconds())
		cookie.Expires = time.Now().Add(s.maxAge)
	}
	http.SetCookie(w, cookie)
	return nil
}

func (s *Store) clear(w http.ResponseWriter) {
	cookie := s.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (s *Store) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     s.path,
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: s.sameSite,
	}
}

func signValue(payload, key []byte) string {
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sign(payload, key))
}

func verify(value string, keys [][]byte) ([]byte, error) {
	encodedPayload, encodedSig, ok := strings.Cut(value, ".")
	if !ok {
		return nil, ErrInvalidCookie
	}
	payload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, ErrInvalidCookie
	}
	signature, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return nil, ErrInvalidCookie
	}

	for _, key := range keys {
		if len(key) > 0 && hmac.Equal(signature, sign(payload, key)) {
			return payload, nil
		}
	}
	return nil, ErrInvalidCookie
}

func sign(payload, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(payload)
	return h.Sum(nil)
}
