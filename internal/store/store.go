package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/relay/internal/models"
)

// ErrNotFound is returned when no credential matches the lookup.
var ErrNotFound = errors.New("credential not found")

// CredentialStore persists PlatformCredential records and their post attempts.
type CredentialStore interface {
	// Upsert inserts the credential or, when (owner, platform, profile) already
	// exists, replaces its secrets and profile name and resets it to active.
	Upsert(ctx context.Context, cred *models.PlatformCredential) (*models.PlatformCredential, error)
	Get(ctx context.Context, id, ownerID string) (*models.PlatformCredential, error)
	FindByProfile(ctx context.Context, ownerID string, platform models.Platform, profileID string) (*models.PlatformCredential, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.PlatformCredential, error)
	ListByOwnerAndPlatform(ctx context.Context, ownerID string, platform models.Platform) ([]models.PlatformCredential, error)
	// UpdateStatus only touches status, updated_at and, when non-nil, last_validated_at.
	UpdateStatus(ctx context.Context, id string, status models.CredentialStatus, validatedAt *time.Time) error
	Delete(ctx context.Context, id, ownerID string) error

	RecordAttempt(ctx context.Context, attempt *models.PostAttempt) error
	ListAttempts(ctx context.Context, credentialID, ownerID string, limit int) ([]models.PostAttempt, error)
}

type GormCredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{db: db}
}

func (s *GormCredentialStore) Upsert(ctx context.Context, cred *models.PlatformCredential) (*models.PlatformCredential, error) {
	row := &models.PlatformCredential{
		OwnerID:             cred.OwnerID,
		Platform:            cred.Platform,
		ExternalProfileID:   cred.ExternalProfileID,
		ExternalProfileName: cred.ExternalProfileName,
		SecretBundle:        cred.SecretBundle.Clone(),
		Status:              models.StatusActive,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "owner_id"},
			{Name: "platform"},
			{Name: "external_profile_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"secret_bundle",
			"external_profile_name",
			"status",
			"updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert credential: %w", err)
	}

	// On conflict the generated id of row is discarded, so read the stored row back.
	return s.FindByProfile(ctx, cred.OwnerID, cred.Platform, cred.ExternalProfileID)
}

func (s *GormCredentialStore) Get(ctx context.Context, id, ownerID string) (*models.PlatformCredential, error) {
	var cred models.PlatformCredential
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&cred).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cred, nil
}

func (s *GormCredentialStore) FindByProfile(ctx context.Context, ownerID string, platform models.Platform, profileID string) (*models.PlatformCredential, error) {
	var cred models.PlatformCredential
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND platform = ? AND external_profile_id = ?", ownerID, platform, profileID).
		First(&cred).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cred, nil
}

func (s *GormCredentialStore) ListByOwner(ctx context.Context, ownerID string) ([]models.PlatformCredential, error) {
	var creds []models.PlatformCredential
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

func (s *GormCredentialStore) ListByOwnerAndPlatform(ctx context.Context, ownerID string, platform models.Platform) ([]models.PlatformCredential, error) {
	var creds []models.PlatformCredential
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND platform = ?", ownerID, platform).
		Order("created_at ASC").
		Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

func (s *GormCredentialStore) UpdateStatus(ctx context.Context, id string, status models.CredentialStatus, validatedAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if validatedAt != nil {
		updates["last_validated_at"] = *validatedAt
	}

	result := s.db.WithContext(ctx).
		Model(&models.PlatformCredential{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update credential status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormCredentialStore) Delete(ctx context.Context, id, ownerID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.PlatformCredential{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete credential: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormCredentialStore) RecordAttempt(ctx context.Context, attempt *models.PostAttempt) error {
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record post attempt: %w", err)
	}
	return nil
}

func (s *GormCredentialStore) ListAttempts(ctx context.Context, credentialID, ownerID string, limit int) ([]models.PostAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	var attempts []models.PostAttempt
	if err := s.db.WithContext(ctx).
		Where("credential_id = ? AND owner_id = ?", credentialID, ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get post history: %w", err)
	}
	return attempts, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to load credential: %w", err)
}
