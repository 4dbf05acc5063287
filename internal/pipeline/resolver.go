package pipeline

import (
	"log/slog"

	"github.com/roomvibe/roomvibe-api/internal/config"
)

// Resolve picks the backend implementation from configuration. Callers only
// ever see the Backend interface; the toggle lives here and nowhere else.
func Resolve(cfg *config.Config, logger *slog.Logger) Backend {
	if cfg.IsMockPipeline() {
		logger.Info("using mock generation backend")
		return NewMockBackend()
	}

	logger.Info("using live generation backend",
		"prompt_service", cfg.PromptServiceURL,
		"image_service", cfg.ImageServiceURL,
	)
	return NewLiveBackend(LiveConfig{
		PromptServiceURL: cfg.PromptServiceURL,
		ImageServiceURL:  cfg.ImageServiceURL,
		ImageToken:       cfg.ImageServiceToken,
	}, logger)
}
