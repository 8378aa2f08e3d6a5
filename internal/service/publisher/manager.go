package publisher

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ifuryst/relay/internal/models"
)

// Registry maps a platform to its Adapter. It is built once at startup and
// handed to the lifecycle service, so tests can construct their own.
type Registry struct {
	adapters map[models.Platform]Adapter
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		adapters: make(map[models.Platform]Adapter),
		logger:   logger,
	}
}

func (r *Registry) Register(adapter Adapter) error {
	platform := adapter.GetPlatformName()
	if _, exists := r.adapters[platform]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, platform)
	}

	r.adapters[platform] = adapter
	r.logger.Info("Adapter registered", zap.String("platform", platform.String()))
	return nil
}

// RegisterPlaceholders registers an Unsupported adapter for every known
// platform that has no adapter yet.
func (r *Registry) RegisterPlaceholders() {
	for _, platform := range models.Platforms {
		if _, exists := r.adapters[platform]; exists {
			continue
		}
		r.adapters[platform] = Unsupported(platform)
		r.logger.Debug("Placeholder adapter registered", zap.String("platform", platform.String()))
	}
}

// Get returns the adapter for platform. An unregistered platform is a
// configuration defect and is reported as ErrUnknownPlatform.
func (r *Registry) Get(platform models.Platform) (Adapter, error) {
	adapter, exists := r.adapters[platform]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return adapter, nil
}

func (r *Registry) Platforms() []models.Platform {
	platforms := make([]models.Platform, 0, len(r.adapters))
	for platform := range r.adapters {
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}
