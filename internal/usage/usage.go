// Package usage applies AI-invocation usage accounting to credential rows.
// It is the downstream consumer side of the vault: the vault itself never
// touches last_used_at.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/quillforge/quillforge-server/internal/models"
	"github.com/quillforge/quillforge-server/internal/vault"
	"gorm.io/gorm"
)

// Record adds amount to the active credential row for (userID, provider):
// current_usage grows, usage_remaining shrinks when a quota is tracked, and
// last_used_at is stamped. Missing or inactive rows are a no-op.
func Record(ctx context.Context, conn *gorm.DB, userID, provider string, amount float64) error {
	if conn == nil {
		return fmt.Errorf("usage: nil connection")
	}
	provider = vault.NormalizeProvider(provider)
	if provider == "" || amount < 0 {
		return nil
	}

	now := time.Now().UTC()
	res := conn.WithContext(ctx).Model(&models.AIProvider{}).
		Where("user_id = ? AND provider = ? AND is_active = ?", userID, provider, true).
		Updates(map[string]any{
			"current_usage":   gorm.Expr("current_usage + ?", amount),
			"usage_remaining": gorm.Expr("CASE WHEN usage_remaining IS NULL THEN NULL ELSE usage_remaining - ? END", amount),
			"last_used_at":    now,
		})
	if res.Error != nil {
		return fmt.Errorf("usage: record: %w", res.Error)
	}
	return nil
}
