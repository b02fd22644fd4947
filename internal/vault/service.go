package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	dbutil "github.com/quillforge/quillforge-server/internal/db"
	"github.com/quillforge/quillforge-server/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Canonical provider tags accepted by the vault.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderGroq       = "groq"
	ProviderGemini     = "gemini"
	ProviderCohere     = "cohere"
)

// knownProviders is the closed set of accepted provider tags.
var knownProviders = map[string]struct{}{
	ProviderOpenAI:     {},
	ProviderAnthropic:  {},
	ProviderOpenRouter: {},
	ProviderOllama:     {},
	ProviderGroq:       {},
	ProviderGemini:     {},
	ProviderCohere:     {},
}

// ollamaDefaultLabel is applied when an Ollama credential carries no label.
const ollamaDefaultLabel = "Local Ollama"

// NormalizeProvider normalizes a provider tag, returning "" for unknown values.
func NormalizeProvider(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return ""
	}
	if _, ok := knownProviders[trimmed]; ok {
		return trimmed
	}
	return ""
}

// Service orchestrates credential persistence, encryption, and the OpenRouter
// key exchange. Every operation is scoped to the calling user.
type Service struct {
	db         *gorm.DB
	cipher     *Cipher
	openRouter *OpenRouterClient
}

// NewService constructs a Service.
func NewService(conn *gorm.DB, cipher *Cipher, openRouter *OpenRouterClient) *Service {
	return &Service{db: conn, cipher: cipher, openRouter: openRouter}
}

// CreateParams captures the inputs for registering a credential.
type CreateParams struct {
	Provider        string
	APIKey          string
	APIURL          *string
	Configuration   map[string]any
	KeyLabel        *string
	KeyHash         string
	ProviderUserID  *string
	IsDefault       bool
	UsageLimit      *float64
	SupportedModels []string
	ProviderConfig  map[string]any
}

// UpdateParams captures a partial patch; nil fields are left untouched.
type UpdateParams struct {
	KeyLabel        *string
	IsActive        *bool
	IsDefault       *bool
	UsageLimit      *float64
	SupportedModels *[]string
	ProviderConfig  *map[string]any
}

// ExchangeParams captures the OpenRouter authorization-code exchange inputs.
type ExchangeParams struct {
	Code                string
	CodeVerifier        string
	CodeChallengeMethod string
}

// Detail is a decoded owner-scoped view of a credential row. The plaintext
// credential is never part of it.
type Detail struct {
	Row             models.AIProvider
	SupportedModels []string
	ProviderConfig  map[string]any
}

// List returns the user's credential rows ordered by creation time ascending.
// A non-empty keyword filters on label and provider tag.
func (s *Service) List(ctx context.Context, userID, keyword string) ([]models.AIProvider, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if keyword = strings.TrimSpace(keyword); keyword != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+keyword+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(s.db, "key_label")+" OR "+dbutil.CaseInsensitiveLikeExpr(s.db, "provider"),
			pattern,
			pattern,
		)
	}

	var rows []models.AIProvider
	if errFind := q.Order("created_at ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("vault: list providers: %w", errFind)
	}
	return rows, nil
}

// Create registers a new credential for the user. One row per provider type is
// allowed; duplicates are rejected with a ConflictError.
func (s *Service) Create(ctx context.Context, userID string, p CreateParams) (string, error) {
	if strings.TrimSpace(p.Provider) == "" {
		return "", &ValidationError{Msg: "Provider is required"}
	}
	provider := NormalizeProvider(p.Provider)
	if provider == "" {
		return "", &ValidationError{Msg: "Unknown provider"}
	}

	apiKey := strings.TrimSpace(p.APIKey)
	if apiKey == "" && provider != ProviderOllama {
		return "", &ValidationError{Msg: "API key is required for this provider"}
	}

	encrypted := ""
	keyHash := ""
	if apiKey != "" {
		var errEncrypt error
		encrypted, errEncrypt = s.cipher.Encrypt(apiKey)
		if errEncrypt != nil {
			return "", fmt.Errorf("vault: encrypt api key: %w", errEncrypt)
		}
		keyHash = strings.TrimSpace(p.KeyHash)
		if keyHash == "" {
			keyHash = HashKey(apiKey)
		}
	}

	keyLabel := p.KeyLabel
	if keyLabel != nil && strings.TrimSpace(*keyLabel) == "" {
		keyLabel = nil
	}
	if keyLabel == nil && provider == ProviderOllama {
		label := ollamaDefaultLabel
		keyLabel = &label
	}

	// A tracked quota starts with its full allowance remaining.
	var usageRemaining *float64
	if p.UsageLimit != nil {
		remaining := *p.UsageLimit
		usageRemaining = &remaining
	}

	configJSON, errConfig := encodeJSON(mergeProviderConfig(p.ProviderConfig, p.APIURL, p.Configuration))
	if errConfig != nil {
		return "", fmt.Errorf("vault: encode provider config: %w", errConfig)
	}
	var modelsJSON datatypes.JSON
	if p.SupportedModels != nil {
		var errModels error
		modelsJSON, errModels = encodeJSON(p.SupportedModels)
		if errModels != nil {
			return "", fmt.Errorf("vault: encode supported models: %w", errModels)
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	row := models.AIProvider{
		ID:              id,
		UserID:          userID,
		Provider:        provider,
		APIKey:          encrypted,
		KeyHash:         keyHash,
		KeyLabel:        keyLabel,
		ProviderUserID:  p.ProviderUserID,
		IsActive:        true,
		IsDefault:       p.IsDefault,
		UsageLimit:      p.UsageLimit,
		UsageRemaining:  usageRemaining,
		CurrentUsage:    0,
		SupportedModels: modelsJSON,
		ProviderConfig:  configJSON,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.AIProvider{}).
			Where("user_id = ? AND provider = ?", userID, provider).
			Count(&count).Error; errCount != nil {
			return errCount
		}
		if count > 0 {
			return &ConflictError{Msg: "Provider already exists for this user. Use update endpoint instead."}
		}

		if p.IsDefault {
			if errClear := tx.Model(&models.AIProvider{}).
				Where("user_id = ? AND provider = ?", userID, provider).
				Update("is_default", false).Error; errClear != nil {
				return errClear
			}
		}

		return tx.Create(&row).Error
	})
	if errTx != nil {
		var conflict *ConflictError
		if errors.As(errTx, &conflict) {
			return "", errTx
		}
		return "", fmt.Errorf("vault: create provider: %w", errTx)
	}
	return id, nil
}

// Update applies a partial patch to an owned credential row. A foreign or
// unknown id affects zero rows and reports no error.
func (s *Service) Update(ctx context.Context, userID, id string, p UpdateParams) error {
	updates := map[string]any{}
	if p.KeyLabel != nil {
		updates["key_label"] = *p.KeyLabel
	}
	if p.IsActive != nil {
		updates["is_active"] = *p.IsActive
	}
	if p.IsDefault != nil {
		updates["is_default"] = *p.IsDefault
	}
	if p.UsageLimit != nil {
		// A new quota resets the remaining allowance.
		updates["usage_limit"] = *p.UsageLimit
		updates["usage_remaining"] = *p.UsageLimit
	}
	if p.SupportedModels != nil {
		modelsJSON, errModels := encodeJSON(*p.SupportedModels)
		if errModels != nil {
			return fmt.Errorf("vault: encode supported models: %w", errModels)
		}
		updates["supported_models"] = modelsJSON
	}
	if p.ProviderConfig != nil {
		configJSON, errConfig := encodeJSON(*p.ProviderConfig)
		if errConfig != nil {
			return fmt.Errorf("vault: encode provider config: %w", errConfig)
		}
		updates["provider_config"] = configJSON
	}
	updates["updated_at"] = time.Now().UTC()

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.IsDefault != nil && *p.IsDefault {
			var row models.AIProvider
			errFind := tx.Select("provider").
				Where("id = ? AND user_id = ?", id, userID).
				First(&row).Error
			if errFind == nil {
				if errClear := tx.Model(&models.AIProvider{}).
					Where("user_id = ? AND provider = ?", userID, row.Provider).
					Update("is_default", false).Error; errClear != nil {
					return errClear
				}
			} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return errFind
			}
		}

		return tx.Model(&models.AIProvider{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error
	})
	if errTx != nil {
		return fmt.Errorf("vault: update provider: %w", errTx)
	}
	return nil
}

// Delete removes an owned credential row. Foreign or unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if errDelete := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.AIProvider{}).Error; errDelete != nil {
		return fmt.Errorf("vault: delete provider: %w", errDelete)
	}
	return nil
}

// Get returns the decoded detail of an owned credential row.
func (s *Service) Get(ctx context.Context, userID, id string) (*Detail, error) {
	var row models.AIProvider
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vault: get provider: %w", errFind)
	}
	return &Detail{
		Row:             row,
		SupportedModels: decodeStringList(row.SupportedModels),
		ProviderConfig:  decodeConfigMap(row.ProviderConfig),
	}, nil
}

// ExchangeOpenRouterCode exchanges an OAuth authorization code for an
// OpenRouter API key and upserts the user's OpenRouter credential row.
func (s *Service) ExchangeOpenRouterCode(ctx context.Context, userID string, p ExchangeParams) (string, error) {
	if strings.TrimSpace(p.Code) == "" {
		return "", &ValidationError{Msg: "Authorization code is required"}
	}

	key, providerUserID, errExchange := s.openRouter.ExchangeCode(ctx, p.Code, p.CodeVerifier, p.CodeChallengeMethod)
	if errExchange != nil {
		return "", errExchange
	}

	encrypted, errEncrypt := s.cipher.Encrypt(key)
	if errEncrypt != nil {
		return "", fmt.Errorf("vault: encrypt api key: %w", errEncrypt)
	}
	keyHash := HashKey(key)
	now := time.Now().UTC()

	var existing models.AIProvider
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, ProviderOpenRouter).
		First(&existing).Error
	if errFind == nil {
		if errUpdate := s.db.WithContext(ctx).Model(&models.AIProvider{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"api_key":          encrypted,
				"key_hash":         keyHash,
				"provider_user_id": providerUserID,
				"is_active":        true,
				"updated_at":       now,
			}).Error; errUpdate != nil {
			return "", fmt.Errorf("vault: update openrouter provider: %w", errUpdate)
		}
		return existing.ID, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("vault: lookup openrouter provider: %w", errFind)
	}

	id := uuid.NewString()
	label := "OpenRouter"
	row := models.AIProvider{
		ID:             id,
		UserID:         userID,
		Provider:       ProviderOpenRouter,
		APIKey:         encrypted,
		KeyHash:        keyHash,
		KeyLabel:       &label,
		ProviderUserID: &providerUserID,
		IsActive:       true,
		IsDefault:      false,
		CurrentUsage:   0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return "", fmt.Errorf("vault: create openrouter provider: %w", errCreate)
	}
	return id, nil
}

// DecryptedAPIKey returns the plaintext credential for the user's active row
// of the given provider. Absence and decrypt failure both report ok=false;
// callers must treat that as "no usable credential". Internal use only, never
// exposed over HTTP.
func (s *Service) DecryptedAPIKey(ctx context.Context, userID, provider string) (string, bool) {
	provider = NormalizeProvider(provider)
	if provider == "" {
		return "", false
	}

	var row models.AIProvider
	errFind := s.db.WithContext(ctx).
		Select("api_key").
		Where("user_id = ? AND provider = ? AND is_active = ?", userID, provider, true).
		First(&row).Error
	if errFind != nil {
		return "", false
	}

	plain, errDecrypt := s.cipher.Decrypt(row.APIKey)
	if errDecrypt != nil {
		// Corrupted ciphertext or rotated scope secret: fail closed.
		return "", false
	}
	return plain, true
}

// mergeProviderConfig folds the base config, apiUrl, and explicit
// configuration into one mapping; later keys override earlier ones.
func mergeProviderConfig(base map[string]any, apiURL *string, configuration map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(configuration)+1)
	for k, v := range base {
		merged[k] = v
	}
	if apiURL != nil {
		merged["apiUrl"] = *apiURL
	}
	for k, v := range configuration {
		merged[k] = v
	}
	return merged
}

// encodeJSON encodes a value into a JSON column, storing empty collections as
// absent rather than as empty object strings.
func encodeJSON(value any) (datatypes.JSON, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return datatypes.JSON(data), nil
}

// decodeStringList decodes a JSON column into a string slice.
func decodeStringList(value datatypes.JSON) []string {
	if len(value) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(value, &out); err != nil {
		return nil
	}
	return out
}

// decodeConfigMap decodes a JSON column into a configuration map.
func decodeConfigMap(value datatypes.JSON) map[string]any {
	if len(value) == 0 {
		return nil
	}
	out := make(map[string]any)
	if err := json.Unmarshal(value, &out); err != nil {
		return nil
	}
	return out
}
