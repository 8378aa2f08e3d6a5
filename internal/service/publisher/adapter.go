package publisher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ifuryst/relay/internal/models"
	"github.com/ifuryst/relay/internal/store"
)

// credentialAdapter resolves the profile's secrets from the store and hands
// them to the platform's protocol client.
type credentialAdapter struct {
	platform models.Platform
	store    store.CredentialStore
	client   Client
	logger   *zap.Logger
}

func NewAdapter(platform models.Platform, credentials store.CredentialStore, client Client, logger *zap.Logger) Adapter {
	return &credentialAdapter{
		platform: platform,
		store:    credentials,
		client:   client,
		logger:   logger.With(zap.String("platform", platform.String())),
	}
}

func (a *credentialAdapter) GetPlatformName() models.Platform {
	return a.platform
}

func (a *credentialAdapter) Post(ctx context.Context, input PostInput) PostResult {
	cred, err := a.store.FindByProfile(ctx, input.OwnerID, a.platform, input.ProfileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PermanentFailure(fmt.Sprintf("No %s account linked for profile %s", a.platform, input.ProfileID))
		}
		a.logger.Error("Failed to load secrets for post",
			zap.String("profile_id", input.ProfileID),
			zap.Error(err))
		return Failed(fmt.Sprintf("secret lookup failed: %v", err), true)
	}

	if !cred.IsActive() {
		return PermanentFailure(fmt.Sprintf("Profile %s on %s is not active (status: %s)", input.ProfileID, a.platform, cred.Status))
	}

	a.logger.Info("Posting",
		zap.String("profile_id", input.ProfileID),
		zap.Int("media_count", len(input.MediaURLs)))

	return a.client.Post(ctx, cred.SecretBundle.Clone(), input)
}

func (a *credentialAdapter) Validate(ctx context.Context, secrets models.SecretBundle) bool {
	valid, err := a.client.Validate(ctx, secrets)
	if err != nil {
		a.logger.Warn("Identity check failed", zap.Error(err))
		return false
	}
	return valid
}

type unsupportedAdapter struct {
	platform models.Platform
}

// Unsupported returns a placeholder adapter that fails every post permanently
// without touching the network.
func Unsupported(platform models.Platform) Adapter {
	return unsupportedAdapter{platform: platform}
}

func (u unsupportedAdapter) GetPlatformName() models.Platform {
	return u.platform
}

func (u unsupportedAdapter) Post(context.Context, PostInput) PostResult {
	return PermanentFailure(fmt.Sprintf("Platform %s is not supported yet", u.platform))
}

func (u unsupportedAdapter) Validate(context.Context, models.SecretBundle) bool {
	return false
}
