package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/linkflow-ai/flowmirror/internal/pkg/logger"
	"github.com/linkflow-ai/flowmirror/internal/pkg/validator"
	"gorm.io/gorm"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrProviderExists   = errors.New("a provider with this base url already exists")
)

// KeyCipher seals and opens provider API keys.
type KeyCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type ProviderService struct {
	providerRepo *repositories.ProviderRepository
	keys         KeyCipher
	clients      n8n.Factory
	testTimeout  time.Duration
}

func NewProviderService(
	providerRepo *repositories.ProviderRepository,
	keys KeyCipher,
	clients n8n.Factory,
	testTimeout time.Duration,
) *ProviderService {
	if testTimeout <= 0 {
		testTimeout = 15 * time.Second
	}
	return &ProviderService{
		providerRepo: providerRepo,
		keys:         keys,
		clients:      clients,
		testTimeout:  testTimeout,
	}
}

type CreateProviderInput struct {
	Name    string `json:"name" validate:"required,max=255"`
	BaseURL string `json:"base_url" validate:"required,baseurl"`
	APIKey  string `json:"api_key" validate:"required"`
}

// ConnectionResult is the outcome of one connectivity test.
type ConnectionResult struct {
	Connected    bool      `json:"connected"`
	HealthStatus string    `json:"health_status"`
	Message      string    `json:"message,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// HealthFromError maps a connectivity test outcome to provider health.
// A busy instance is reachable, so it stays connected with a warning.
func HealthFromError(err error) (connected bool, status string) {
	switch {
	case err == nil:
		return true, models.HealthHealthy
	case n8n.IsTransient(err):
		return true, models.HealthWarning
	default:
		return false, models.HealthError
	}
}

// Create stores a new provider with its key sealed, then tests it. The
// provider is kept even when the test fails; its health says why.
func (s *ProviderService) Create(ctx context.Context, input CreateProviderInput) (*models.Provider, *ConnectionResult, error) {
	input.Name = validator.SanitizeName(input.Name)
	input.BaseURL = validator.SanitizeBaseURL(input.BaseURL)
	if err := validator.Validate(input); err != nil {
		return nil, nil, err
	}

	if _, err := s.providerRepo.FindByBaseURL(ctx, input.BaseURL); err == nil {
		return nil, nil, ErrProviderExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	sealed, err := s.keys.Encrypt(input.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt api key: %w", err)
	}

	provider := &models.Provider{
		Name:            input.Name,
		BaseURL:         input.BaseURL,
		APIKeyEncrypted: sealed,
		HealthStatus:    models.HealthHealthy,
	}
	if err := s.providerRepo.Create(ctx, provider); err != nil {
		return nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}

	result, err := s.test(ctx, provider)
	if err != nil {
		return provider, nil, err
	}
	return provider, result, nil
}

func (s *ProviderService) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	provider, err := s.providerRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return provider, nil
}

func (s *ProviderService) List(ctx context.Context) ([]models.Provider, error) {
	return s.providerRepo.List(ctx)
}

// TestConnection pings the provider and records the outcome.
func (s *ProviderService) TestConnection(ctx context.Context, id uuid.UUID) (*models.Provider, *ConnectionResult, error) {
	provider, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.test(ctx, provider)
	if err != nil {
		return nil, nil, err
	}
	return provider, result, nil
}

func (s *ProviderService) test(ctx context.Context, provider *models.Provider) (*ConnectionResult, error) {
	pingErr := s.ping(ctx, provider)
	connected, status := HealthFromError(pingErr)

	result := &ConnectionResult{
		Connected:    connected,
		HealthStatus: status,
		CheckedAt:    time.Now(),
	}
	if pingErr != nil {
		result.Message = pingErr.Error()
	}

	if err := s.providerRepo.UpdateHealth(ctx, provider.ID, connected, status, result.Message); err != nil {
		return nil, fmt.Errorf("failed to record provider health: %w", err)
	}
	provider.IsConnected = connected
	provider.HealthStatus = status
	provider.LastCheckedAt = &result.CheckedAt

	l := logger.WithProviderID(provider.ID.String())
	if pingErr != nil {
		l.Warn().Err(pingErr).Str("health_status", status).Msg("Provider connection test failed")
	} else {
		l.Debug().Msg("Provider connection test passed")
	}
	return result, nil
}

func (s *ProviderService) ping(ctx context.Context, provider *models.Provider) error {
	apiKey, err := s.keys.Decrypt(provider.APIKeyEncrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt api key: %w", err)
	}
	client, err := s.clients(provider.BaseURL, apiKey)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.testTimeout)
	defer cancel()
	return client.Ping(ctx)
}

// CheckUnhealthy re-tests every provider that is disconnected or not
// healthy and returns how many came back healthy.
func (s *ProviderService) CheckUnhealthy(ctx context.Context) (int, error) {
	providers, err := s.providerRepo.FindUnhealthy(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load unhealthy providers: %w", err)
	}

	recovered := 0
	for i := range providers {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		result, err := s.test(ctx, &providers[i])
		if err != nil {
			l := logger.WithProviderID(providers[i].ID.String())
			l.Error().Err(err).Msg("Provider re-check failed")
			continue
		}
		if result.HealthStatus == models.HealthHealthy {
			recovered++
		}
	}
	return recovered, nil
}

// EnsureDefault creates or refreshes the provider named in configuration.
// It returns nil when no default provider is configured.
func (s *ProviderService) EnsureDefault(ctx context.Context, cfg config.N8NConfig) (*models.Provider, error) {
	baseURL := validator.SanitizeBaseURL(cfg.BaseURL)
	if baseURL == "" || cfg.APIKey == "" {
		return nil, nil
	}
	name := cfg.ProviderName
	if name == "" {
		name = "n8n"
	}

	existing, err := s.providerRepo.FindByBaseURL(ctx, baseURL)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		provider, _, err := s.Create(ctx, CreateProviderInput{Name: name, BaseURL: baseURL, APIKey: cfg.APIKey})
		return provider, err
	}
	if err != nil {
		return nil, err
	}

	current, err := s.keys.Decrypt(existing.APIKeyEncrypted)
	if err != nil || current != cfg.APIKey || existing.Name != name {
		sealed, err := s.keys.Encrypt(cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api key: %w", err)
		}
		if err := s.providerRepo.UpdateFields(ctx, existing.ID, map[string]interface{}{
			"name":              name,
			"api_key_encrypted": sealed,
		}); err != nil {
			return nil, fmt.Errorf("failed to update default provider: %w", err)
		}
		existing.Name = name
		existing.APIKeyEncrypted = sealed
	}

	if _, err := s.test(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}
