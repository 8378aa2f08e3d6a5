package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/relay/internal/config"
	"github.com/ifuryst/relay/internal/models"
)

func newTestStore(t *testing.T) *GormCredentialStore {
	t.Helper()

	db, err := NewDatabase(&config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "relay.db"),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewCredentialStore(db)
}

func xCredential(owner, profile string) *models.PlatformCredential {
	return &models.PlatformCredential{
		OwnerID:             owner,
		Platform:            models.PlatformX,
		ExternalProfileID:   profile,
		ExternalProfileName: "@" + profile,
		SecretBundle: models.SecretBundle{
			"appKey":       "k",
			"appSecret":    "s",
			"accessToken":  "t",
			"accessSecret": "u",
		},
	}
}

func TestUpsert_InsertsActiveCredential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Upsert(ctx, xCredential("owner-1", "p1"))
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, "k", stored.SecretBundle.Get("appKey"))
	assert.Nil(t, stored.LastValidatedAt)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestUpsert_SameTripleUpdatesExistingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, xCredential("owner-1", "p1"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, first.ID, models.StatusError, nil))

	again := xCredential("owner-1", "p1")
	again.ExternalProfileName = "@renamed"
	again.SecretBundle["accessToken"] = "t2"

	second, err := s.Upsert(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.StatusActive, second.Status)
	assert.Equal(t, "@renamed", second.ExternalProfileName)
	assert.Equal(t, "t2", second.SecretBundle.Get("accessToken"))

	all, err := s.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsert_DifferentOwnerOrProfileInsertsNewRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Upsert(ctx, xCredential("owner-1", "p1"))
	require.NoError(t, err)
	b, err := s.Upsert(ctx, xCredential("owner-1", "p2"))
	require.NoError(t, err)
	c, err := s.Upsert(ctx, xCredential("owner-2", "p1"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)

	mine, err := s.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestGet_IsScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Upsert(ctx, xCredential("owner-1", "p1"))
	require.NoError(t, err)

	got, err := s.Get(ctx, stored.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)

	_, err = s.Get(ctx, stored.ID, "owner-2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "missing", "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByOwnerAndPlatform(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, xCredential("owner-1", "p1"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, &models.PlatformCredential{
		OwnerID:           "owner-1",
		Platform:          models.PlatformInstagram,
		ExternalProfileID: "ig-1",
		SecretBundle:      models.SecretBundle{"accessToken": "a", "instagramAccountId": "ig-1"},
	})
	require.NoError(t, err)

	xs, err := s.ListByOwnerAndPlatform(ctx, "owner-1", models.PlatformX)
	require.NoError(t, err)
	require.Len(t, xs, 1)
	assert.Equal(t, models.PlatformX, xs[0].Platform)

	none, err := s.ListByOwnerAndPlatform(ctx, "owner-1", models.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Upsert(ctx, xCredential("owner-1", "p1"))
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateStatus(ctx, stored.ID, models.StatusError, &now))

	got, err := s.Get(ctx, stored.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	require.NotNil(t, got.LastValidatedAt)
	assert.WithinDuration(t, now, *got.LastValidatedAt, time.Second)
	assert.Equal(t, "k", got.SecretBundle.Get("appKey"))

	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", models.StatusActive, nil), ErrNotFound)
}

func TestDelete_IsScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Upsert(ctx, xCredential("owner-1", "p1"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, stored.ID, "owner-2"), ErrNotFound)
	require.NoError(t, s.Delete(ctx, stored.ID, "owner-1"))

	_, err = s.Get(ctx, stored.ID, "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, stored.ID, "owner-1"), ErrNotFound)
}

func TestAttempts_NewestFirstAndLimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordAttempt(ctx, &models.PostAttempt{
			CredentialID: "cred-1",
			OwnerID:      "owner-1",
			Platform:     models.PlatformX,
			Success:      i%2 == 0,
			RemoteID:     []string{"a", "b", "c"}[i],
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.RecordAttempt(ctx, &models.PostAttempt{
		CredentialID: "cred-1",
		OwnerID:      "owner-2",
		Platform:     models.PlatformX,
		CreatedAt:    base,
	}))

	attempts, err := s.ListAttempts(ctx, "cred-1", "owner-1", 2)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "c", attempts[0].RemoteID)
	assert.Equal(t, "b", attempts[1].RemoteID)

	all, err := s.ListAttempts(ctx, "cred-1", "owner-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
