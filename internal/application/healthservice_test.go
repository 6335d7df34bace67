package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/storepanel/internal/application"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthService_Check(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		session    *staticSession
		wantStatus string
		wantDB     string
		wantAuth   bool
	}{
		{name: "healthy and unauthenticated", session: &staticSession{}, wantStatus: "ok", wantDB: "ok"},
		{name: "healthy and authenticated", session: sessionAs(alice, aliceCred), wantStatus: "ok", wantDB: "ok", wantAuth: true},
		{name: "database down", pingErr: errBoom, session: &staticSession{}, wantStatus: "degraded", wantDB: "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := application.NewHealthService(pingerFunc(func(context.Context) error { return tt.pingErr }), tt.session)

			report := svc.Check(context.Background())

			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantDB, report.Database)
			assert.Equal(t, tt.wantAuth, report.Authenticated)
			assert.False(t, report.CheckedAt.IsZero())
		})
	}
}
