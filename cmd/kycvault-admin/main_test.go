package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycvault/pkg/domain"
	kyctestutil "kycvault/pkg/testutil"
)

func TestCommandStructure(t *testing.T) {
	commands := [][]string{
		{"migrate", "up"}, {"migrate", "down"}, {"migrate", "status"},
		{"orphans", "sweep"}, {"verify"}, {"upload"}, {"topics"},
		{"kyc", "status"}, {"kyc", "submit"}, {"kyc", "approve"}, {"kyc", "reject"}, {"kyc", "pending"},
		{"ratelimit", "status"}, {"ratelimit", "reset"},
	}
	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			cmd, _, err := rootCmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], cmd.Name())
			assert.NotEmpty(t, cmd.Short)
		})
	}
}

func TestMigrateSkipsServiceGraph(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"migrate", "up"})
	require.NoError(t, err)
	assert.False(t, needsApp(cmd))

	cmd, _, err = rootCmd.Find([]string{"kyc", "status"})
	require.NoError(t, err)
	assert.True(t, needsApp(cmd))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestUploadThenStatusInMemory(t *testing.T) {
	t.Setenv("ENCRYPTION_MASTER_KEY", strings.Repeat("cd", 32))
	t.Setenv("ENCRYPTION_KDF_ITERATIONS", "1000")
	t.Setenv("STORAGE_LOCAL_ROOT", t.TempDir())

	file := filepath.Join(t.TempDir(), "id.pdf")
	require.NoError(t, os.WriteFile(file, kyctestutil.PDF("ID 1234567890", 4096), 0o600))
	owner := domain.NewOwnerID().String()

	out, err := run(t, "upload", owner, "national_id", file, "--mime", "application/pdf")
	require.NoError(t, err)
	var uploaded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &uploaded))
	assert.Equal(t, "pending", uploaded["status"])
	assert.Equal(t, "application/pdf", uploaded["detected_mime"])

	// Each invocation builds a fresh in-memory graph, so the owner starts over.
	out, err = run(t, "kyc", "status", owner)
	require.NoError(t, err)
	assert.Contains(t, out, `"Status": "not_started"`)

	_, err = run(t, "kyc", "status", "not-a-uuid")
	assert.Error(t, err)
}
