package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
)

func TestCredentialRepo_SaveAndLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	err := repo.Save(ctx, model.Credential{Token: "tok123"})
	require.NoError(t, err)

	cred, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok123", cred.Token)
}

func TestCredentialRepo_LoadEmptySlot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)

	cred, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, cred.IsZero())
}

func TestCredentialRepo_SaveOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, model.Credential{Token: "old"}))
	require.NoError(t, repo.Save(ctx, model.Credential{Token: "new"}))

	cred, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", cred.Token)

	var rows int
	require.NoError(t, db.Reader.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestCredentialRepo_SaveRejectsEmptyToken(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)

	err := repo.Save(context.Background(), model.Credential{})
	require.Error(t, err)
}

func TestCredentialRepo_StoresCiphertext(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)

	require.NoError(t, repo.Save(context.Background(), model.Credential{Token: "tok123"}))

	var stored string
	require.NoError(t, db.Reader.QueryRow(`SELECT value FROM credentials WHERE service = 'storefront'`).Scan(&stored))
	assert.NotContains(t, stored, "tok123")
}

func TestCredentialRepo_Clear(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, model.Credential{Token: "tok123"}))
	require.NoError(t, repo.Clear(ctx))

	cred, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, cred.IsZero())
}

func TestCredentialRepo_ClearEmptySlot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)

	err := repo.Clear(context.Background())
	assert.NoError(t, err, "clearing an empty slot should not error")
}

func TestCredentialRepo_WithoutKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, nil)
	ctx := context.Background()

	err := repo.Save(ctx, model.Credential{Token: "tok123"})
	require.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = repo.Load(ctx)
	require.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	assert.NoError(t, repo.Clear(ctx))
}

func TestCredentialRepo_WrongKeyFailsToDecrypt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewCredentialRepo(db, testKey).Save(ctx, model.Credential{Token: "tok123"}))

	other := NewCredentialRepo(db, []byte("fedcba9876543210fedcba9876543210"))
	_, err := other.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt credential")
}
