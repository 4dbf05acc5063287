package service

import (
	"fmt"
	"log/slog"

	"github.com/roomvibe/roomvibe-api/internal/config"
	"github.com/roomvibe/roomvibe-api/internal/crypto"
	"github.com/roomvibe/roomvibe-api/internal/pipeline"
	"github.com/roomvibe/roomvibe-api/internal/repository"
)

// Services aggregates all business logic services.
type Services struct {
	Credit     *CreditService
	Payment    *PaymentService
	Generation *GenerationService
	Storage    *StorageService
}

// NewServices wires up all services with their dependencies.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	var encryptor *crypto.Encryptor
	if len(cfg.EncryptionKey) > 0 {
		var err error
		encryptor, err = crypto.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
	}

	storage, err := NewStorageService(cfg, logger.With("service", "storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	backend := pipeline.Resolve(cfg, logger.With("service", "pipeline"))

	credit := NewCreditService(repos, cfg, logger.With("service", "credit"))
	billing := config.DefaultBillingConfig()
	payment := NewPaymentService(cfg, &billing, repos, credit, encryptor, logger.With("service", "payment"))
	generation := NewGenerationService(cfg, backend, repos, credit, storage, logger.With("service", "generation"))

	return &Services{
		Credit:     credit,
		Payment:    payment,
		Generation: generation,
		Storage:    storage,
	}, nil
}
