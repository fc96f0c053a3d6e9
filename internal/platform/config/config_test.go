package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycvault/pkg/domain"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, "local", cfg.Storage.Backend)
		assert.Equal(t, 100_000, cfg.Encryption.Iterations)
		assert.Equal(t, float64(75), cfg.Validation.PassThreshold)
		assert.Equal(t, 30*time.Second, cfg.Scan.Timeout)
		assert.Empty(t, cfg.Kafka.Brokers)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092,")
		t.Setenv("SCAN_TIMEOUT", "5s")
		t.Setenv("STORAGE_BACKEND", "s3")
		t.Setenv("UPLOAD_MAX_IN_FLIGHT", "4")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, 5*time.Second, cfg.Scan.Timeout)
		assert.Equal(t, "s3", cfg.Storage.Backend)
		assert.Equal(t, int64(4), cfg.Limits.MaxInFlight)
	})

	t.Run("invalid values are reported together", func(t *testing.T) {
		t.Setenv("SCAN_TIMEOUT", "soon")
		t.Setenv("DB_MAX_OPEN_CONNS", "many")

		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SCAN_TIMEOUT")
		assert.Contains(t, err.Error(), "DB_MAX_OPEN_CONNS")
	})
}

func TestLoadCatalog(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("merges categories and keeps requirement order", func(t *testing.T) {
		path := write(t, `
categories:
  - id: utility_bill
    name: Utility bill
    allowed_mime_types: [application/pdf]
    max_size: 2048
requirements:
  individual: [national_id, utility_bill]
`)
		cf, err := LoadCatalog(path, domain.DefaultCatalog())
		require.NoError(t, err)
		assert.Equal(t, []domain.CategoryID{"national_id", "utility_bill"}, cf.Requirements["individual"])

		merged := cf.Merge(domain.DefaultCatalog())
		bill, ok := merged.Lookup("utility_bill")
		require.True(t, ok)
		assert.Equal(t, int64(2048), bill.MaxSize)
		_, ok = merged.Lookup("national_id")
		assert.True(t, ok)
	})

	t.Run("rejects unknown categories in requirements", func(t *testing.T) {
		path := write(t, "requirements:\n  business: [missing_doc]\n")
		_, err := LoadCatalog(path, domain.DefaultCatalog())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing_doc")
	})

	t.Run("rejects malformed category ids", func(t *testing.T) {
		path := write(t, "categories:\n  - id: ../etc\n")
		_, err := LoadCatalog(path, domain.DefaultCatalog())
		require.Error(t, err)
	})
}
