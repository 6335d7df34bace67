package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
)

// startRevalidator runs r until the test ends.
func startRevalidator(t *testing.T, r *application.SessionRevalidator) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRevalidate_ExpiredCredentialLogsOut(t *testing.T) {
	valid := make(chan bool, 1)
	valid <- true
	api := &mockAPI{currentUser: func(context.Context, model.Credential) (*model.Identity, error) {
		ok := <-valid
		valid <- ok
		if !ok {
			return nil, driven.ErrUnauthorized
		}
		id := alice
		return &id, nil
	}}
	creds := &mockCredentialStore{}
	store := loggedInStore(t, api, creds, aliceCred)

	r := application.NewSessionRevalidator(store, 0, discardLogger())
	startRevalidator(t, r)

	sess, err := r.Revalidate(context.Background())
	require.NoError(t, err)
	assert.True(t, sess.Authenticated())

	<-valid
	valid <- false

	sess, err = r.Revalidate(context.Background())
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
	assert.True(t, creds.Stored().IsZero())
}

func TestRevalidate_UnauthenticatedIssuesNoRequest(t *testing.T) {
	api := &mockAPI{}
	store := newSessionStore(api, &mockCredentialStore{})

	r := application.NewSessionRevalidator(store, 0, discardLogger())
	startRevalidator(t, r)

	sess, err := r.Revalidate(context.Background())
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
	assert.Empty(t, api.Calls())
}

func TestRevalidate_ContextCanceledWhenNotRunning(t *testing.T) {
	r := application.NewSessionRevalidator(&staticSession{}, 0, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Revalidate(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRevalidator_PeriodicTick(t *testing.T) {
	session := sessionAs(alice, aliceCred)

	r := application.NewSessionRevalidator(session, 10*time.Millisecond, discardLogger())
	startRevalidator(t, r)

	assert.Eventually(t, func() bool {
		return session.Fetches() >= 2
	}, time.Second, 5*time.Millisecond)
}
