// Package auth signs users in against user documents and tracks sessions.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/daewon/plantops/internal/apperr"
	"github.com/daewon/plantops/internal/docstore"
	"github.com/daewon/plantops/internal/metrics"
)

// UsersCollection holds one document per user, keyed by email.
const UsersCollection = "users"

// DefaultDomain is appended to identifiers that carry no domain.
const DefaultDomain = "daewon.local"

// Session event kinds.
const (
	EventSignedIn  = "signed_in"
	EventSignedOut = "signed_out"
	EventExpired   = "expired"
)

// NormalizeIdentifier trims id and appends "@"+domain when it has no "@".
// Identifiers that already carry a domain pass through unchanged.
func NormalizeIdentifier(id, domain string) string {
	s := strings.TrimSpace(id)
	if strings.Contains(s, "@") {
		return s
	}
	return s + "@" + domain
}

// UserStore is the subset of the document store auth needs.
type UserStore interface {
	Get(ctx context.Context, collection, id string) (*docstore.Document, error)
	Create(ctx context.Context, collection, id string, body json.RawMessage) (*docstore.Document, error)
}

// Session is an authenticated sign-in.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Event reports a session change.
type Event struct {
	Kind    string
	Session Session
}

type userDoc struct {
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// Options configure a Service.
type Options struct {
	Domain     string
	SessionTTL time.Duration
	BcryptCost int
}

// Service implements sign-in, sign-out and session lookup.
type Service struct {
	users    UserStore
	domain   string
	ttl      time.Duration
	cost     int
	sessions *gocache.Cache
	logger   *slog.Logger

	mu        sync.Mutex
	listeners map[uint64]func(Event)
	nextID    uint64
}

// NewService creates an auth service. Zero options fall back to defaults.
func NewService(users UserStore, opts Options, logger *slog.Logger) *Service {
	if opts.Domain == "" {
		opts.Domain = DefaultDomain
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		users:     users,
		domain:    opts.Domain,
		ttl:       opts.SessionTTL,
		cost:      opts.BcryptCost,
		sessions:  gocache.New(opts.SessionTTL, time.Minute),
		logger:    logger,
		listeners: make(map[uint64]func(Event)),
	}
	s.sessions.OnEvicted(s.evicted)
	return s
}

// Domain returns the suffix used for bare identifiers.
func (s *Service) Domain() string {
	return s.domain
}

func validateCredentials(identifier, secret string) error {
	return validation.Errors{
		"identifier": validation.Validate(strings.TrimSpace(identifier), validation.Required),
		"secret":     validation.Validate(secret, validation.Required, validation.Length(1, 72)),
	}.Filter()
}

// SignIn checks the secret of the user named by identifier and opens a
// session. Unknown users and wrong secrets both yield apperr.ErrUnauthorized.
func (s *Service) SignIn(ctx context.Context, identifier, secret string) (*Session, error) {
	if err := validateCredentials(identifier, secret); err != nil {
		metrics.SignIns.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("auth: %w: %v", apperr.ErrInvalid, err)
	}
	email := NormalizeIdentifier(identifier, s.domain)

	doc, err := s.users.Get(ctx, UsersCollection, email)
	if errors.Is(err, apperr.ErrNotFound) {
		metrics.SignIns.WithLabelValues("rejected").Inc()
		return nil, apperr.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	var u userDoc
	if err := json.Unmarshal(doc.Data, &u); err != nil {
		return nil, fmt.Errorf("auth: decode user %s: %w", email, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)); err != nil {
		metrics.SignIns.WithLabelValues("rejected").Inc()
		return nil, apperr.ErrUnauthorized
	}

	now := time.Now().UTC()
	sess := Session{
		Token:     uuid.NewString(),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions.Set(sess.Token, sess, s.ttl)
	metrics.SignIns.WithLabelValues("ok").Inc()
	s.logger.Info("auth: signed in", slog.String("email", email))
	s.emit(Event{Kind: EventSignedIn, Session: sess})
	return &sess, nil
}

// SignOut ends a session. Unknown tokens are ignored.
func (s *Service) SignOut(_ context.Context, token string) error {
	if token == "" {
		return nil
	}
	// The eviction callback emits the signed-out event.
	s.sessions.Delete(token)
	return nil
}

// CurrentSession returns the live session for token, if any.
func (s *Service) CurrentSession(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	v, ok := s.sessions.Get(token)
	if !ok {
		return nil, false
	}
	sess := v.(Session)
	return &sess, true
}

// OnSessionChange registers fn for sign-in, sign-out and expiry events.
// The returned function removes it.
func (s *Service) OnSessionChange(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// AddUser creates a user with a bcrypt-hashed secret.
func (s *Service) AddUser(ctx context.Context, identifier, secret string) (string, error) {
	if err := (validation.Errors{
		"identifier": validation.Validate(strings.TrimSpace(identifier), validation.Required),
		"secret":     validation.Validate(secret, validation.Required, validation.Length(8, 72)),
	}).Filter(); err != nil {
		return "", fmt.Errorf("auth: %w: %v", apperr.ErrInvalid, err)
	}
	email := NormalizeIdentifier(identifier, s.domain)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	body, err := json.Marshal(userDoc{Email: email, PasswordHash: string(hash)})
	if err != nil {
		return "", fmt.Errorf("auth: encode user: %w", err)
	}
	if _, err := s.users.Create(ctx, UsersCollection, email, body); err != nil {
		return "", err
	}
	return email, nil
}

func (s *Service) evicted(token string, v any) {
	sess, ok := v.(Session)
	if !ok {
		return
	}
	kind := EventSignedOut
	if !time.Now().Before(sess.ExpiresAt) {
		kind = EventExpired
	}
	s.logger.Info("auth: session ended", slog.String("email", sess.Email), slog.String("reason", kind))
	s.emit(Event{Kind: kind, Session: sess})
}

func (s *Service) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
