package service

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/relay/internal/config"
	"github.com/ifuryst/relay/internal/models"
	"github.com/ifuryst/relay/internal/service/publisher"
	"github.com/ifuryst/relay/internal/service/publisher/instagram"
	"github.com/ifuryst/relay/internal/service/publisher/linkedin"
	"github.com/ifuryst/relay/internal/service/publisher/x"
	"github.com/ifuryst/relay/internal/store"
)

// BuildRegistry registers the protocol clients for X, Instagram and LinkedIn
// and placeholders for every other known platform.
func BuildRegistry(cfg *config.PlatformsConfig, credentials store.CredentialStore, logger *zap.Logger) *publisher.Registry {
	registry := publisher.NewRegistry(logger)

	fetcher := publisher.NewMediaFetcher(&http.Client{
		Timeout: config.Duration(cfg.MediaFetchTimeout, 30*time.Second),
	})

	// Register X publisher
	xClient := x.New(x.Config{
		Timeout: config.Duration(cfg.X.Timeout, 30*time.Second),
		Debug:   cfg.X.Debug,
	}, fetcher, logger)
	register(registry, publisher.NewAdapter(models.PlatformX, credentials, xClient, logger), logger)

	// Register Instagram publisher
	instagramClient := instagram.New(instagram.Config{
		BaseURL: cfg.Instagram.BaseURL,
		Timeout: config.Duration(cfg.Instagram.Timeout, 60*time.Second),
	}, logger)
	register(registry, publisher.NewAdapter(models.PlatformInstagram, credentials, instagramClient, logger), logger)

	// Register LinkedIn publisher
	linkedinClient := linkedin.New(linkedin.Config{
		BaseURL: cfg.LinkedIn.BaseURL,
		Timeout: config.Duration(cfg.LinkedIn.Timeout, 30*time.Second),
	}, logger)
	register(registry, publisher.NewAdapter(models.PlatformLinkedIn, credentials, linkedinClient, logger), logger)

	registry.RegisterPlaceholders()
	return registry
}

func register(registry *publisher.Registry, adapter publisher.Adapter, logger *zap.Logger) {
	if err := registry.Register(adapter); err != nil {
		logger.Error("Failed to register adapter",
			zap.String("platform", adapter.GetPlatformName().String()),
			zap.Error(err))
	}
}
