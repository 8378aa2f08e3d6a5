package publisher

import (
	"context"

	"github.com/ifuryst/relay/internal/models"
)

// PostInput is one logical post addressed to a connected profile.
type PostInput struct {
	OwnerID   string   `json:"owner_id"`
	ProfileID string   `json:"profile_id"`
	Text      string   `json:"text"`
	MediaURLs []string `json:"media_urls"`
}

// PostResult is either a success carrying the platform's post id or a
// failure carrying a message and whether a later retry may succeed.
type PostResult struct {
	Success      bool   `json:"success"`
	RemoteID     string `json:"remoteId,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Transient    bool   `json:"transient"`
}

func Succeeded(remoteID string) PostResult {
	return PostResult{Success: true, RemoteID: remoteID}
}

func Failed(message string, transient bool) PostResult {
	return PostResult{ErrorMessage: message, Transient: transient}
}

// PermanentFailure is a failure that will not succeed on a bare retry.
func PermanentFailure(message string) PostResult {
	return Failed(message, false)
}

// FailedWith converts err into a failure, classifying it with IsTransient.
func FailedWith(err error) PostResult {
	return Failed(err.Error(), IsTransient(err))
}

// Adapter is the uniform per-platform contract the lifecycle service dispatches to.
type Adapter interface {
	GetPlatformName() models.Platform

	// Post loads the secrets of the addressed profile and publishes the post.
	Post(ctx context.Context, input PostInput) PostResult

	// Validate runs a lightweight identity check that never creates content.
	Validate(ctx context.Context, secrets models.SecretBundle) bool
}

// Client executes the wire protocol of exactly one network.
type Client interface {
	Post(ctx context.Context, secrets models.SecretBundle, input PostInput) PostResult
	Validate(ctx context.Context, secrets models.SecretBundle) (bool, error)
}
