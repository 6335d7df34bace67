// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/storepanel/internal/metrics"
)

// ErrSessionSuperseded is returned by Login when a Logout completed while the
// login was in flight; the login result is discarded.
var ErrSessionSuperseded = errors.New("session changed while login was in progress")

// Session is an immutable snapshot of the client session. Identity and
// Credential are always published together: a non-nil Identity implies a
// non-empty Credential.
type Session struct {
	Identity   *model.Identity
	Credential model.Credential
}

// Authenticated reports whether the snapshot carries an identity.
func (s Session) Authenticated() bool {
	return s.Identity != nil && !s.Credential.IsZero()
}

// SessionStore is the single authority over the client session. It is the
// only writer of the persisted credential slot and of the published
// Identity/Credential pair, and it notifies subscribers after every published
// transition.
type SessionStore struct {
	api      driven.StorefrontAPI
	store    driven.CredentialStore
	logger   *slog.Logger
	validate *validator.Validate

	initOnce sync.Once

	// opMu serializes every credential-slot write with the publication that
	// depends on it. stored mirrors the slot and is only touched under opMu.
	opMu   sync.Mutex
	stored model.Credential

	mu        sync.RWMutex
	current   Session
	epoch     uint64
	listeners map[uint64]func(Session)
	nextID    uint64
}

// NewSessionStore creates a SessionStore in the Unauthenticated state. Call
// Initialize to restore a persisted session.
func NewSessionStore(api driven.StorefrontAPI, store driven.CredentialStore, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		api:       api,
		store:     store,
		logger:    logger,
		validate:  newValidator(),
		listeners: make(map[uint64]func(Session)),
	}
}

// Current returns the published session snapshot.
func (s *SessionStore) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called with the new snapshot after every
// published transition. fn runs on the goroutine that caused the transition
// and must not block. The returned func removes the subscription.
func (s *SessionStore) Subscribe(fn func(Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Initialize restores a persisted session. It runs at most once per store;
// later calls return immediately. Failures are logged and leave the store
// Unauthenticated with the persisted credential removed.
func (s *SessionStore) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		s.opMu.Lock()
		cred, err := s.store.Load(ctx)
		if err == nil {
			s.stored = cred
		}
		s.opMu.Unlock()
		if err != nil {
			s.logger.Error("loading persisted credential failed", "error", err)
			metrics.SessionFailuresTotal.WithLabelValues("load").Inc()
			s.Logout(ctx)
			return
		}
		if cred.IsZero() {
			s.logger.Info("no persisted session")
			return
		}

		s.logger.Info("restoring persisted session")
		s.fetchIdentity(ctx, cred, s.currentEpoch())
	})
}

// FetchIdentity refreshes the published identity using the current
// credential. Any failure is logged and resolved by Logout; it is never
// returned. Without a credential it does nothing.
func (s *SessionStore) FetchIdentity(ctx context.Context) {
	s.mu.RLock()
	cred := s.current.Credential
	epoch := s.epoch
	s.mu.RUnlock()

	if cred.IsZero() {
		return
	}
	s.fetchIdentity(ctx, cred, epoch)
}

// Login exchanges email and password for a credential, persists it and then
// fetches the identity it belongs to. A failure before the credential is
// persisted is returned and leaves the session unchanged. A failed identity
// fetch afterwards is resolved by Logout and not returned.
func (s *SessionStore) Login(ctx context.Context, email, password string) error {
	if err := validateInput(s.validate, loginInput{Email: email, Password: password}); err != nil {
		return err
	}

	cred, err := s.api.Login(ctx, email, password)
	if err != nil {
		metrics.SessionFailuresTotal.WithLabelValues("login").Inc()
		s.logger.Warn("login failed", "error", err)
		return fmt.Errorf("login: %w", err)
	}

	epoch, err := s.persist(ctx, cred)
	if err != nil {
		metrics.SessionFailuresTotal.WithLabelValues("persist").Inc()
		s.logger.Error("persisting credential failed", "error", err)
		return fmt.Errorf("login: persist credential: %w", err)
	}

	if s.fetchIdentity(ctx, cred, epoch) == fetchDiscarded {
		return ErrSessionSuperseded
	}
	return nil
}

// Register creates an account and then logs into it with the same email and
// password. A registration failure has no side effects; a login failure after
// a successful registration is returned to the caller.
func (s *SessionStore) Register(ctx context.Context, name, email, password string) error {
	if err := validateInput(s.validate, registerInput{Name: name, Email: email, Password: password}); err != nil {
		return err
	}

	if err := s.api.Register(ctx, name, email, password); err != nil {
		metrics.SessionFailuresTotal.WithLabelValues("register").Inc()
		s.logger.Warn("registration failed", "error", err)
		return fmt.Errorf("register: %w", err)
	}

	s.logger.Info("account registered, logging in")
	return s.Login(ctx, email, password)
}

// Logout erases the persisted credential and publishes Unauthenticated. It
// never fails and is idempotent; storage errors are logged.
func (s *SessionStore) Logout(ctx context.Context) {
	s.logout(ctx, nil)
}

// logout performs Logout. When onlyEpoch is non-nil the logout is skipped if
// another transition happened since that epoch was observed.
func (s *SessionStore) logout(ctx context.Context, onlyEpoch *uint64) {
	s.opMu.Lock()
	s.mu.RLock()
	superseded := onlyEpoch != nil && *onlyEpoch != s.epoch
	s.mu.RUnlock()
	if superseded {
		s.opMu.Unlock()
		s.logger.Debug("skipping logout for superseded session")
		return
	}
	snapshot, listeners, changed := s.logoutLocked(ctx)
	s.opMu.Unlock()

	if !changed {
		return
	}
	s.logger.Info("session ended")
	s.notify(snapshot, listeners)
}

// logoutLocked clears the slot and the published session. s.opMu must be held;
// the caller notifies listeners after releasing it.
func (s *SessionStore) logoutLocked(ctx context.Context) (Session, []func(Session), bool) {
	s.mu.Lock()
	changed := s.current.Identity != nil || !s.current.Credential.IsZero()
	s.epoch++
	s.current = Session{}
	snapshot, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		metrics.SessionFailuresTotal.WithLabelValues("clear").Inc()
		s.logger.Error("clearing persisted credential failed", "error", err)
	}
	s.stored = model.Credential{}
	return snapshot, listeners, changed
}

// persist writes cred to the credential slot and returns the epoch the
// subsequent identity fetch belongs to.
func (s *SessionStore) persist(ctx context.Context, cred model.Credential) (uint64, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.store.Save(ctx, cred); err != nil {
		return 0, err
	}
	s.stored = cred
	return s.currentEpoch(), nil
}

type fetchOutcome int

const (
	fetchPublished fetchOutcome = iota
	fetchFailed
	fetchDiscarded
)

// fetchIdentity requests the identity for cred and publishes it together with
// cred, unless the published credential changed since epoch. A failed fetch
// logs out the session it was started for.
func (s *SessionStore) fetchIdentity(ctx context.Context, cred model.Credential, epoch uint64) fetchOutcome {
	identity, err := s.api.CurrentUser(ctx, cred)
	if err == nil && identity == nil {
		err = errors.New("backend returned no identity")
	}
	if err != nil {
		metrics.SessionFailuresTotal.WithLabelValues("fetch_identity").Inc()
		s.logger.Warn("fetching identity failed, logging out", "error", err)
		s.logout(ctx, &epoch)
		return fetchFailed
	}

	published := *identity

	// The epoch check, the slot write and the publication happen under opMu so
	// the slot always ends up holding the published credential, even when
	// another Login persisted its own credential in the meantime.
	s.opMu.Lock()
	if s.currentEpoch() != epoch {
		s.opMu.Unlock()
		s.logger.Debug("discarding identity fetched for superseded session", "user_id", published.ID)
		return fetchDiscarded
	}
	if s.stored != cred {
		if err := s.store.Save(ctx, cred); err != nil {
			metrics.SessionFailuresTotal.WithLabelValues("persist").Inc()
			s.logger.Error("restoring persisted credential failed, logging out", "error", err)
			snapshot, listeners, changed := s.logoutLocked(ctx)
			s.opMu.Unlock()
			if changed {
				s.notify(snapshot, listeners)
			}
			return fetchFailed
		}
		s.stored = cred
	}

	s.mu.Lock()
	if s.current.Credential != cred {
		s.epoch++
	}
	s.current = Session{Identity: &published, Credential: cred}
	snapshot, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()
	s.opMu.Unlock()

	s.logger.Info("session authenticated", "user_id", published.ID, "role", published.Role)
	s.notify(snapshot, listeners)
	return fetchPublished
}

func (s *SessionStore) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// snapshotLocked copies the current session so callers cannot mutate the
// published identity. s.mu must be held.
func (s *SessionStore) snapshotLocked() Session {
	snap := Session{Credential: s.current.Credential}
	if s.current.Identity != nil {
		identity := *s.current.Identity
		snap.Identity = &identity
	}
	return snap
}

func (s *SessionStore) listenersLocked() []func(Session) {
	out := make([]func(Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func (s *SessionStore) notify(snapshot Session, listeners []func(Session)) {
	if snapshot.Authenticated() {
		metrics.SessionTransitionsTotal.WithLabelValues("authenticated").Inc()
		metrics.SessionAuthenticated.Set(1)
	} else {
		metrics.SessionTransitionsTotal.WithLabelValues("unauthenticated").Inc()
		metrics.SessionAuthenticated.Set(0)
	}
	for _, fn := range listeners {
		fn(snapshot)
	}
}
