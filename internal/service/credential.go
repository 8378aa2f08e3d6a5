package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/relay/internal/models"
	"github.com/ifuryst/relay/internal/service/publisher"
	"github.com/ifuryst/relay/internal/store"
)

var (
	ErrInvalidPlatform = errors.New("invalid platform")
	ErrInvalidInput    = errors.New("invalid input")
)

// CredentialService owns the credential lifecycle and orchestrates posting.
type CredentialService struct {
	store    store.CredentialStore
	registry *publisher.Registry
	logger   *zap.Logger
	now      func() time.Time
}

func NewCredentialService(credentials store.CredentialStore, registry *publisher.Registry, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		store:    credentials,
		registry: registry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StoreCredentials inserts the credential or, for an existing
// (owner, platform, profile), replaces its secrets and resets it to active.
func (s *CredentialService) StoreCredentials(ctx context.Context, ownerID string, platform models.Platform, profileID, profileName string, secrets models.SecretBundle) (*models.PlatformCredential, error) {
	if !platform.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlatform, platform)
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if strings.TrimSpace(profileID) == "" {
		return nil, fmt.Errorf("%w: profile id is required", ErrInvalidInput)
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("%w: secrets are required", ErrInvalidInput)
	}

	cred, err := s.store.Upsert(ctx, &models.PlatformCredential{
		OwnerID:             ownerID,
		Platform:            platform,
		ExternalProfileID:   profileID,
		ExternalProfileName: profileName,
		SecretBundle:        secrets,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credentials stored",
		zap.String("credential_id", cred.ID),
		zap.String("platform", platform.String()),
		zap.String("profile_id", profileID))
	return cred, nil
}

func (s *CredentialService) GetUserCredentials(ctx context.Context, ownerID string) ([]models.PlatformCredential, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

func (s *CredentialService) GetPlatformCredentials(ctx context.Context, ownerID string, platform models.Platform) ([]models.PlatformCredential, error) {
	if !platform.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlatform, platform)
	}
	return s.store.ListByOwnerAndPlatform(ctx, ownerID, platform)
}

// ValidateCredentials runs the platform's identity check and records the
// outcome as active or error. A platform without an adapter is invalid.
func (s *CredentialService) ValidateCredentials(ctx context.Context, credentialID, ownerID string) (bool, error) {
	cred, err := s.store.Get(ctx, credentialID, ownerID)
	if err != nil {
		return false, err
	}

	valid := false
	adapter, err := s.registry.Get(cred.Platform)
	if err != nil {
		s.logger.Warn("No adapter for credential platform",
			zap.String("credential_id", cred.ID),
			zap.String("platform", cred.Platform.String()))
	} else {
		valid = adapter.Validate(ctx, cred.SecretBundle)
	}

	status := models.StatusError
	if valid {
		status = models.StatusActive
	}
	now := s.now()
	if err := s.store.UpdateStatus(ctx, cred.ID, status, &now); err != nil {
		return false, err
	}

	s.logger.Info("Credentials validated",
		zap.String("credential_id", cred.ID),
		zap.String("platform", cred.Platform.String()),
		zap.Bool("valid", valid))
	return valid, nil
}

func (s *CredentialService) DeleteCredentials(ctx context.Context, ownerID, credentialID string) error {
	if err := s.store.Delete(ctx, credentialID, ownerID); err != nil {
		return err
	}
	s.logger.Info("Credentials deleted", zap.String("credential_id", credentialID))
	return nil
}

// PostWithCredentials publishes through the credential's platform adapter and
// returns its result unchanged. The only Go error is an unregistered platform.
func (s *CredentialService) PostWithCredentials(ctx context.Context, credentialID, ownerID, text string, mediaURLs []string) (publisher.PostResult, error) {
	cred, err := s.store.Get(ctx, credentialID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return publisher.PermanentFailure("Credentials not found"), nil
		}
		s.logger.Error("Failed to load credentials for post",
			zap.String("credential_id", credentialID),
			zap.Error(err))
		return publisher.Failed("failed to load credentials", true), nil
	}

	if !cred.IsActive() {
		return publisher.PermanentFailure(fmt.Sprintf(
			"Credentials for %s are %s; re-authenticate the account before posting",
			cred.Platform, cred.Status)), nil
	}

	adapter, err := s.registry.Get(cred.Platform)
	if err != nil {
		return publisher.PostResult{}, err
	}

	result := adapter.Post(ctx, publisher.PostInput{
		OwnerID:   ownerID,
		ProfileID: cred.ExternalProfileID,
		Text:      text,
		MediaURLs: mediaURLs,
	})

	if !result.Success && !result.Transient && publisher.IsCredentialFailure(result.ErrorMessage) {
		if err := s.store.UpdateStatus(ctx, cred.ID, models.StatusError, nil); err != nil {
			s.logger.Error("Failed to flag credentials after auth failure",
				zap.String("credential_id", cred.ID),
				zap.Error(err))
		} else {
			s.logger.Warn("Credentials flagged after auth failure",
				zap.String("credential_id", cred.ID),
				zap.String("platform", cred.Platform.String()))
		}
	}

	s.recordAttempt(ctx, cred, result, len(mediaURLs))
	return result, nil
}

func (s *CredentialService) recordAttempt(ctx context.Context, cred *models.PlatformCredential, result publisher.PostResult, mediaCount int) {
	attempt := &models.PostAttempt{
		CredentialID: cred.ID,
		OwnerID:      cred.OwnerID,
		Platform:     cred.Platform,
		Success:      result.Success,
		RemoteID:     result.RemoteID,
		Error:        result.ErrorMessage,
		Transient:    result.Transient,
		MediaCount:   mediaCount,
	}
	if err := s.store.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Warn("Failed to record post attempt",
			zap.String("credential_id", cred.ID),
			zap.Error(err))
	}
}

// MarkExpired is called by collaborators that detect token expiry out of band.
func (s *CredentialService) MarkExpired(ctx context.Context, credentialID string) error {
	return s.mark(ctx, credentialID, models.StatusExpired)
}

// MarkRevoked is called by collaborators that detect revocation out of band.
func (s *CredentialService) MarkRevoked(ctx context.Context, credentialID string) error {
	return s.mark(ctx, credentialID, models.StatusRevoked)
}

func (s *CredentialService) mark(ctx context.Context, credentialID string, status models.CredentialStatus) error {
	if err := s.store.UpdateStatus(ctx, credentialID, status, nil); err != nil {
		return err
	}
	s.logger.Info("Credential status changed",
		zap.String("credential_id", credentialID),
		zap.String("status", status.String()))
	return nil
}

func (s *CredentialService) GetPostHistory(ctx context.Context, credentialID, ownerID string, limit int) ([]models.PostAttempt, error) {
	if _, err := s.store.Get(ctx, credentialID, ownerID); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, credentialID, ownerID, limit)
}
