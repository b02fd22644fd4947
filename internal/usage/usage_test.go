package usage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/quillforge/quillforge-server/internal/db"
	"github.com/quillforge/quillforge-server/internal/models"
	"github.com/quillforge/quillforge-server/internal/vault"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func seedProvider(t *testing.T, conn *gorm.DB, userID string, limit *float64) string {
	t.Helper()
	cipher, err := vault.NewCipher("usage-test-secret")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	svc := vault.NewService(conn, cipher, vault.NewOpenRouterClient(""))
	id, err := svc.Create(context.Background(), userID, vault.CreateParams{
		Provider:   vault.ProviderOpenAI,
		APIKey:     "sk-usage",
		UsageLimit: limit,
	})
	if err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	return id
}

func TestRecordAccumulatesUsage(t *testing.T) {
	conn := newTestDB(t)
	limit := 100.0
	id := seedProvider(t, conn, "u1", &limit)
	ctx := context.Background()

	if err := Record(ctx, conn, "u1", "openai", 2.5); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := Record(ctx, conn, "u1", "OpenAI", 1.5); err != nil {
		t.Fatalf("record: %v", err)
	}

	var row models.AIProvider
	if err := conn.Where("id = ?", id).First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.CurrentUsage != 4.0 {
		t.Fatalf("current_usage = %v, want 4.0", row.CurrentUsage)
	}
	if row.UsageRemaining == nil || *row.UsageRemaining != 96.0 {
		t.Fatalf("usage_remaining = %v, want 96.0", row.UsageRemaining)
	}
	if row.LastUsedAt == nil {
		t.Fatalf("last_used_at not stamped")
	}
}

func TestRecordWithoutQuotaKeepsRemainingNull(t *testing.T) {
	conn := newTestDB(t)
	id := seedProvider(t, conn, "u1", nil)

	if err := Record(context.Background(), conn, "u1", "openai", 3); err != nil {
		t.Fatalf("record: %v", err)
	}

	var row models.AIProvider
	if err := conn.Where("id = ?", id).First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.CurrentUsage != 3 {
		t.Fatalf("current_usage = %v, want 3", row.CurrentUsage)
	}
	if row.UsageRemaining != nil {
		t.Fatalf("usage_remaining should stay null, got %v", *row.UsageRemaining)
	}
}

func TestRecordIgnoresUnknownAndNegative(t *testing.T) {
	conn := newTestDB(t)
	id := seedProvider(t, conn, "u1", nil)
	ctx := context.Background()

	if err := Record(ctx, conn, "u1", "skynet", 5); err != nil {
		t.Fatalf("record unknown provider: %v", err)
	}
	if err := Record(ctx, conn, "u1", "openai", -5); err != nil {
		t.Fatalf("record negative amount: %v", err)
	}
	if err := Record(ctx, conn, "u2", "openai", 5); err != nil {
		t.Fatalf("record for foreign user: %v", err)
	}

	var row models.AIProvider
	if err := conn.Where("id = ?", id).First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.CurrentUsage != 0 {
		t.Fatalf("current_usage changed: %v", row.CurrentUsage)
	}
	if row.LastUsedAt != nil {
		t.Fatalf("last_used_at stamped by a no-op")
	}
}
