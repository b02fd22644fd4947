package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quillforge/quillforge-server/internal/models"
	"github.com/quillforge/quillforge-server/internal/vault"
)

// AIProviderHandler serves the per-user AI provider credential endpoints.
type AIProviderHandler struct {
	svc *vault.Service
}

// NewAIProviderHandler constructs an AIProviderHandler.
func NewAIProviderHandler(svc *vault.Service) *AIProviderHandler {
	return &AIProviderHandler{svc: svc}
}

// createAIProviderRequest captures the payload for registering a credential.
type createAIProviderRequest struct {
	Provider        string         `json:"provider"`        // Provider tag.
	APIKey          *string        `json:"apiKey"`          // Plaintext credential (optional for Ollama).
	APIURL          *string        `json:"apiUrl"`          // Optional endpoint override.
	Configuration   map[string]any `json:"configuration"`   // Optional extra configuration.
	KeyLabel        *string        `json:"keyLabel"`        // Optional display label.
	KeyHash         *string        `json:"keyHash"`         // Optional precomputed digest.
	ProviderUserID  *string        `json:"providerUserId"`  // Optional upstream identity.
	IsDefault       bool           `json:"isDefault"`       // Request default selection.
	UsageLimit      *float64       `json:"usageLimit"`      // Optional quota cap.
	SupportedModels []string       `json:"supportedModels"` // Optional model identifiers.
	ProviderConfig  map[string]any `json:"providerConfig"`  // Optional base configuration.
}

// updateAIProviderRequest captures optional fields for updates.
type updateAIProviderRequest struct {
	KeyLabel        *string         `json:"keyLabel"`        // Optional display label.
	IsActive        *bool           `json:"isActive"`        // Optional active toggle.
	IsDefault       *bool           `json:"isDefault"`       // Optional default toggle.
	UsageLimit      *float64        `json:"usageLimit"`      // Optional quota cap.
	SupportedModels *[]string       `json:"supportedModels"` // Optional full replacement.
	ProviderConfig  *map[string]any `json:"providerConfig"`  // Optional full replacement.
}

// exchangeRequest captures the OpenRouter OAuth exchange payload.
type exchangeRequest struct {
	Code                string `json:"code"`                // Authorization code.
	CodeVerifier        string `json:"codeVerifier"`        // PKCE verifier.
	CodeChallengeMethod string `json:"codeChallengeMethod"` // PKCE method.
}

// List returns the user's credential rows without plaintext secrets.
func (h *AIProviderHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	keyword := strings.TrimSpace(c.Query("keyword"))

	rows, errList := h.svc.List(c.Request.Context(), userID, keyword)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list AI providers"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatProviderSummary(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// Create registers a new credential row.
func (h *AIProviderHandler) Create(c *gin.Context) {
	userID := c.GetString("userID")

	var body createAIProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	id, errCreate := h.svc.Create(c.Request.Context(), userID, vault.CreateParams{
		Provider:        body.Provider,
		APIKey:          derefString(body.APIKey),
		APIURL:          body.APIURL,
		Configuration:   body.Configuration,
		KeyLabel:        body.KeyLabel,
		KeyHash:         derefString(body.KeyHash),
		ProviderUserID:  body.ProviderUserID,
		IsDefault:       body.IsDefault,
		UsageLimit:      body.UsageLimit,
		SupportedModels: body.SupportedModels,
		ProviderConfig:  body.ProviderConfig,
	})
	if errCreate != nil {
		var validationErr *vault.ValidationError
		var conflictErr *vault.ConflictError
		switch {
		case errors.As(errCreate, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Msg})
		case errors.As(errCreate, &conflictErr):
			c.JSON(http.StatusConflict, gin.H{"error": conflictErr.Msg})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create AI provider"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

// Update applies a partial patch to an owned credential row.
func (h *AIProviderHandler) Update(c *gin.Context) {
	userID := c.GetString("userID")
	id := strings.TrimSpace(c.Param("id"))

	var body updateAIProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if errUpdate := h.svc.Update(c.Request.Context(), userID, id, vault.UpdateParams{
		KeyLabel:        body.KeyLabel,
		IsActive:        body.IsActive,
		IsDefault:       body.IsDefault,
		UsageLimit:      body.UsageLimit,
		SupportedModels: body.SupportedModels,
		ProviderConfig:  body.ProviderConfig,
	}); errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update AI provider"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete removes an owned credential row.
func (h *AIProviderHandler) Delete(c *gin.Context) {
	userID := c.GetString("userID")
	id := strings.TrimSpace(c.Param("id"))

	if errDelete := h.svc.Delete(c.Request.Context(), userID, id); errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete AI provider"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Get returns decoded credential detail without the plaintext secret.
func (h *AIProviderHandler) Get(c *gin.Context) {
	userID := c.GetString("userID")
	id := strings.TrimSpace(c.Param("id"))

	detail, errGet := h.svc.Get(c.Request.Context(), userID, id)
	if errGet != nil {
		if errors.Is(errGet, vault.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get AI provider"})
		return
	}

	row := &detail.Row
	out := formatProviderSummary(row)
	out["providerUserId"] = row.ProviderUserID
	out["updatedAt"] = row.UpdatedAt
	out["supportedModels"] = detail.SupportedModels
	out["providerConfig"] = detail.ProviderConfig
	c.JSON(http.StatusOK, gin.H{"provider": out})
}

// ExchangeOpenRouter exchanges an OAuth code and upserts the OpenRouter row.
func (h *AIProviderHandler) ExchangeOpenRouter(c *gin.Context) {
	userID := c.GetString("userID")

	var body exchangeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	id, errExchange := h.svc.ExchangeOpenRouterCode(c.Request.Context(), userID, vault.ExchangeParams{
		Code:                body.Code,
		CodeVerifier:        body.CodeVerifier,
		CodeChallengeMethod: body.CodeChallengeMethod,
	})
	if errExchange != nil {
		var validationErr *vault.ValidationError
		var upstreamErr *vault.UpstreamError
		switch {
		case errors.As(errExchange, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Msg})
		case errors.As(errExchange, &upstreamErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": upstreamErr.Msg})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to exchange code"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

// derefString returns the value or an empty string when nil.
func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// formatProviderSummary converts a credential row into response JSON. The
// ciphertext column is never included; keyHash identifies the credential.
func formatProviderSummary(row *models.AIProvider) gin.H {
	return gin.H{
		"id":             row.ID,
		"provider":       row.Provider,
		"keyLabel":       row.KeyLabel,
		"keyHash":        row.KeyHash,
		"isActive":       row.IsActive,
		"isDefault":      row.IsDefault,
		"usageLimit":     row.UsageLimit,
		"usageRemaining": row.UsageRemaining,
		"currentUsage":   row.CurrentUsage,
		"createdAt":      row.CreatedAt,
		"lastUsedAt":     row.LastUsedAt,
	}
}
