package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDotEnv(t *testing.T) {
	path := writeEnvFile(t, `
# comment
MONITORD_DOTENV_A=hello
export MONITORD_DOTENV_B="quoted value"
MONITORD_DOTENV_C='single'
`)
	t.Setenv("MONITORD_DOTENV_A", "")
	os.Unsetenv("MONITORD_DOTENV_A")
	t.Setenv("MONITORD_DOTENV_B", "")
	os.Unsetenv("MONITORD_DOTENV_B")
	t.Setenv("MONITORD_DOTENV_C", "")
	os.Unsetenv("MONITORD_DOTENV_C")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("MONITORD_DOTENV_A"))
	assert.Equal(t, "quoted value", os.Getenv("MONITORD_DOTENV_B"))
	assert.Equal(t, "single", os.Getenv("MONITORD_DOTENV_C"))
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := writeEnvFile(t, "MONITORD_DOTENV_KEEP=from_file\n")
	t.Setenv("MONITORD_DOTENV_KEEP", "from_env")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from_env", os.Getenv("MONITORD_DOTENV_KEEP"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestLoadDotEnvRejectsMalformedLine(t *testing.T) {
	path := writeEnvFile(t, "JUSTAKEY\n")
	err := LoadDotEnv(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}
