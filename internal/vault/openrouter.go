package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// defaultOpenRouterEndpoint is OpenRouter's authorization-code exchange endpoint.
const defaultOpenRouterEndpoint = "https://openrouter.ai/api/v1/auth/keys"

// exchangeTimeout bounds the outbound exchange call.
const exchangeTimeout = 10 * time.Second

// OpenRouterClient exchanges OAuth authorization codes for OpenRouter API keys.
type OpenRouterClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewOpenRouterClient constructs a client. An empty endpoint selects the
// production OpenRouter endpoint.
func NewOpenRouterClient(endpoint string) *OpenRouterClient {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultOpenRouterEndpoint
	}
	return &OpenRouterClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: exchangeTimeout},
	}
}

// exchangeResult carries the fields returned by the key exchange.
type exchangeResult struct {
	Key    string `json:"key"`
	UserID string `json:"user_id"`
}

// ExchangeCode performs the authorization-code exchange and returns the issued
// API key and the upstream user id.
func (c *OpenRouterClient) ExchangeCode(ctx context.Context, code, codeVerifier, codeChallengeMethod string) (string, string, error) {
	payload, errMarshal := json.Marshal(map[string]string{
		"code":                  code,
		"code_verifier":         codeVerifier,
		"code_challenge_method": codeChallengeMethod,
	})
	if errMarshal != nil {
		return "", "", fmt.Errorf("vault: marshal exchange payload: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if errReq != nil {
		return "", "", fmt.Errorf("vault: build exchange request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return "", "", &UpstreamError{Msg: "Failed to exchange code with OpenRouter"}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &UpstreamError{Msg: "Failed to exchange code with OpenRouter"}
	}

	var result exchangeResult
	if errDecode := json.NewDecoder(resp.Body).Decode(&result); errDecode != nil {
		return "", "", &UpstreamError{Msg: "Failed to exchange code with OpenRouter"}
	}
	if strings.TrimSpace(result.Key) == "" {
		return "", "", &UpstreamError{Msg: "No API key received from OpenRouter"}
	}
	return result.Key, result.UserID, nil
}
