package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqliteadapter "github.com/ericfisherdev/storepanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/testutil/fakebackend"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// setupEnv points the config at backend and a fresh database and returns the
// database path.
func setupEnv(t *testing.T, backend *fakebackend.Backend) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "storepanel.db")
	t.Setenv("STOREPANEL_API_BASE_URL", backend.URL())
	t.Setenv("STOREPANEL_DB_PATH", dbPath)
	t.Setenv("STOREPANEL_SECRET_KEY", hex.EncodeToString(testKey))
	t.Setenv("STOREPANEL_LOG_LEVEL", "error")
	t.Setenv("STOREPANEL_LISTEN_ADDR", closedAddr(t))
	return dbPath
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

type serverCall struct{ method, path string }

// fakeServer stands in for a running storepanel and answers every request
// with status.
func fakeServer(t *testing.T, status int) (addr string, calls func() []serverCall) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []serverCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, serverCall{r.Method, r.URL.Path})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://"), func() []serverCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]serverCall(nil), got...)
	}
}

func withCredential(t *testing.T, dbPath, token string) {
	t.Helper()
	db, err := sqliteadapter.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = sqliteadapter.RunMigrations(db.Writer)
	require.NoError(t, err)
	require.NoError(t, sqliteadapter.NewCredentialRepo(db, testKey).Save(context.Background(), model.Credential{Token: token}))
}

func storedCredential(t *testing.T, dbPath string) model.Credential {
	t.Helper()
	db, err := sqliteadapter.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()
	cred, err := sqliteadapter.NewCredentialRepo(db, testKey).Load(context.Background())
	require.NoError(t, err)
	return cred
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"whoami"}, {"status", "extra"}, {"status", "-bogus"}, {"logout", "-offline"}} {
		code, _, stderr := runCmd(t, args...)
		assert.Equal(t, 2, code)
		assert.Contains(t, stderr, usage)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	t.Setenv("STOREPANEL_API_BASE_URL", "")

	code, _, stderr := runCmd(t, "status")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "sessionctl:")
}

func TestRun_StatusSignedOut(t *testing.T) {
	backend := fakebackend.New(t)
	setupEnv(t, backend)

	code, stdout, _ := runCmd(t, "status")

	assert.Equal(t, 0, code)
	assert.Equal(t, "signed out\n", stdout)
	assert.Empty(t, backend.Requests())
}

func TestRun_StatusReportsIdentity(t *testing.T) {
	backend := fakebackend.New(t)
	id := backend.AddUser("alice", "alice@example.com", "s3cret", model.RoleWorker)
	dbPath := setupEnv(t, backend)
	token := backend.IssueToken(id)
	withCredential(t, dbPath, token)

	code, stdout, _ := runCmd(t, "status")

	assert.Equal(t, 0, code)
	assert.Equal(t, "signed in as alice <alice@example.com> (worker)\n", stdout)
	assert.Equal(t, token, storedCredential(t, dbPath).Token)
}

func TestRun_StatusOffline(t *testing.T) {
	backend := fakebackend.New(t)
	dbPath := setupEnv(t, backend)
	withCredential(t, dbPath, "tok-1")

	code, stdout, _ := runCmd(t, "status", "-offline")

	assert.Equal(t, 0, code)
	assert.Equal(t, "credential stored (identity not checked)\n", stdout)
	assert.Empty(t, backend.Requests())
}

func TestRun_StatusKeepsStoredCredential(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, backend *fakebackend.Backend)
		wantStdout string
		wantStderr string
	}{
		{
			name:       "revoked token",
			setup:      func(_ *testing.T, backend *fakebackend.Backend) { backend.RevokeTokens() },
			wantStdout: "credential stored but rejected by the storefront\n",
		},
		{
			name: "storefront unreachable",
			setup: func(t *testing.T, _ *fakebackend.Backend) {
				t.Setenv("STOREPANEL_API_BASE_URL", "http://"+closedAddr(t))
			},
			wantStderr: "could not verify stored credential",
		},
		{
			name: "storefront failing",
			setup: func(_ *testing.T, backend *fakebackend.Backend) {
				backend.FailNext(http.MethodGet, "/api/user", http.StatusInternalServerError)
			},
			wantStderr: "could not verify stored credential",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := fakebackend.New(t)
			id := backend.AddUser("alice", "alice@example.com", "s3cret", model.RoleCustomer)
			dbPath := setupEnv(t, backend)
			token := backend.IssueToken(id)
			withCredential(t, dbPath, token)
			tt.setup(t, backend)

			code, stdout, stderr := runCmd(t, "status")

			assert.Equal(t, 1, code)
			if tt.wantStdout != "" {
				assert.Equal(t, tt.wantStdout, stdout)
			}
			if tt.wantStderr != "" {
				assert.Contains(t, stderr, tt.wantStderr)
			}
			assert.Equal(t, token, storedCredential(t, dbPath).Token)
		})
	}
}

func TestRun_LogoutThroughServer(t *testing.T) {
	backend := fakebackend.New(t)
	dbPath := setupEnv(t, backend)
	withCredential(t, dbPath, "tok-1")
	addr, calls := fakeServer(t, http.StatusNoContent)
	t.Setenv("STOREPANEL_LISTEN_ADDR", addr)

	code, stdout, _ := runCmd(t, "logout")

	assert.Equal(t, 0, code)
	assert.Equal(t, "signed out\n", stdout)
	assert.Equal(t, []serverCall{{http.MethodDelete, "/api/v1/session"}}, calls())
	// The server owns the slot while it runs.
	assert.Equal(t, "tok-1", storedCredential(t, dbPath).Token)
	assert.Empty(t, backend.Requests())
}

func TestRun_LogoutServerRefuses(t *testing.T) {
	backend := fakebackend.New(t)
	dbPath := setupEnv(t, backend)
	withCredential(t, dbPath, "tok-1")
	addr, _ := fakeServer(t, http.StatusInternalServerError)
	t.Setenv("STOREPANEL_LISTEN_ADDR", addr)

	code, _, stderr := runCmd(t, "logout")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "server refused logout")
	assert.Equal(t, "tok-1", storedCredential(t, dbPath).Token)
}

func TestRun_LogoutWithoutServerErasesCredential(t *testing.T) {
	backend := fakebackend.New(t)
	id := backend.AddUser("alice", "alice@example.com", "s3cret", model.RoleCustomer)
	dbPath := setupEnv(t, backend)
	withCredential(t, dbPath, backend.IssueToken(id))

	code, stdout, _ := runCmd(t, "logout")

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "server not running")
	assert.True(t, storedCredential(t, dbPath).IsZero())
	assert.Empty(t, backend.Requests())
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"127.0.0.1:9000", "http://127.0.0.1:9000"},
		{"0.0.0.0:8080", "http://127.0.0.1:8080"},
		{":8081", "http://127.0.0.1:8081"},
		{"[::]:8082", "http://127.0.0.1:8082"},
		{"garbage", "http://127.0.0.1:8080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, serverURL(tt.raw), tt.raw)
	}
}
