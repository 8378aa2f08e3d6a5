package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/relay/internal/models"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(Unsupported(models.PlatformX)))

	adapter, err := r.Get(models.PlatformX)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformX, adapter.GetPlatformName())

	err = r.Register(Unsupported(models.PlatformX))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegistry_UnknownPlatformIsConfigurationError(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.RegisterPlaceholders()

	_, err := r.Get(models.Platform("myspace"))
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestRegistry_PlaceholdersFillGaps(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	custom := Unsupported(models.PlatformLinkedIn)
	require.NoError(t, r.Register(custom))
	r.RegisterPlaceholders()

	assert.Equal(t, []models.Platform{"facebook", "instagram", "linkedin", "tiktok", "x", "youtube"}, r.Platforms())

	adapter, err := r.Get(models.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, custom, adapter)
}

func TestUnsupported_FailsPermanently(t *testing.T) {
	adapter := Unsupported(models.PlatformTikTok)

	result := adapter.Post(context.Background(), PostInput{ProfileID: "p1", Text: "hello"})
	assert.False(t, result.Success)
	assert.False(t, result.Transient)
	assert.Contains(t, result.ErrorMessage, "tiktok")
	assert.Contains(t, result.ErrorMessage, "not supported")

	assert.False(t, adapter.Validate(context.Background(), models.SecretBundle{"accessToken": "t"}))
}
