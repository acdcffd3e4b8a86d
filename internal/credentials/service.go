package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"booking-platform/internal/bolna"
	"booking-platform/pkg/logger"
)

var (
	ErrKeyTooShort          = fmt.Errorf("credentials: api key must be at least %d characters", bolna.MinKeyLength)
	ErrKeyRejected          = errors.New("credentials: api key rejected by provider")
	ErrNotConfigured        = errors.New("credentials: bolna api key not configured")
	ErrOrganizationNotFound = errors.New("credentials: organization not found")
	ErrInvalidRequest       = errors.New("credentials: invalid request")
)

// Repository reads and writes the organization's encrypted key column. The organization row
// itself is owned elsewhere.
type Repository interface {
	GetEncryptedKey(ctx context.Context, organizationID string) (string, error)
	SetEncryptedKey(ctx context.Context, organizationID, record string) error
	ClearEncryptedKey(ctx context.Context, organizationID string) error
}

// Cipher is the subset of the vault used here.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(record string) (string, bool)
}

// Auditor records key changes; failures never block the operation.
type Auditor interface {
	CredentialSaved(ctx context.Context, organizationID string)
	CredentialCleared(ctx context.Context, organizationID string)
}

type Status struct {
	IsConfigured bool `json:"isConfigured"`
	IsValid      bool `json:"isValid"`
}

type Service struct {
	repo     Repository
	cipher   Cipher
	provider bolna.Factory
	audit    Auditor
}

func NewService(repo Repository, cipher Cipher, provider bolna.Factory, audit Auditor) *Service {
	return &Service{repo: repo, cipher: cipher, provider: provider, audit: audit}
}

func (s *Service) SaveAPIKey(ctx context.Context, organizationID, apiKey string) error {
	if organizationID == "" {
		return ErrInvalidRequest
	}
	apiKey = strings.TrimSpace(apiKey)
	if len(apiKey) < bolna.MinKeyLength {
		return ErrKeyTooShort
	}
	if !s.provider.ForKey(apiKey).ValidateKey(ctx) {
		return ErrKeyRejected
	}
	record, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("credentials: encrypt: %w", err)
	}
	if err := s.repo.SetEncryptedKey(ctx, organizationID, record); err != nil {
		return err
	}
	logger.From(ctx).Info("bolna api key saved", "organization_id", organizationID)
	if s.audit != nil {
		s.audit.CredentialSaved(ctx, organizationID)
	}
	return nil
}

func (s *Service) Status(ctx context.Context, organizationID string) (Status, error) {
	record, err := s.repo.GetEncryptedKey(ctx, organizationID)
	if err != nil {
		return Status{}, err
	}
	if record == "" {
		return Status{}, nil
	}
	out := Status{IsConfigured: true}
	if key, ok := s.cipher.Decrypt(record); ok {
		out.IsValid = s.provider.ForKey(key).ValidateKey(ctx)
	} else {
		logger.From(ctx).Warn("stored bolna api key does not decrypt", "organization_id", organizationID)
	}
	return out, nil
}

func (s *Service) Clear(ctx context.Context, organizationID string) error {
	if organizationID == "" {
		return ErrInvalidRequest
	}
	if err := s.repo.ClearEncryptedKey(ctx, organizationID); err != nil {
		return err
	}
	logger.From(ctx).Info("bolna api key cleared", "organization_id", organizationID)
	if s.audit != nil {
		s.audit.CredentialCleared(ctx, organizationID)
	}
	return nil
}

// APIKey decrypts the organization key for immediate use. Absent and undecryptable keys are
// both ErrNotConfigured.
func (s *Service) APIKey(ctx context.Context, organizationID string) (string, error) {
	record, err := s.repo.GetEncryptedKey(ctx, organizationID)
	if err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			return "", ErrNotConfigured
		}
		return "", err
	}
	if record == "" {
		return "", ErrNotConfigured
	}
	key, ok := s.cipher.Decrypt(record)
	if !ok || key == "" {
		return "", ErrNotConfigured
	}
	return key, nil
}

// Provider returns a provider session bound to the organization key.
func (s *Service) Provider(ctx context.Context, organizationID string) (bolna.Provider, error) {
	key, err := s.APIKey(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return s.provider.ForKey(key), nil
}
