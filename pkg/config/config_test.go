package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marrow-labs/truthspine/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns safe defaults when no
// environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("TRUTH_INDEX_PATH", "")
	t.Setenv("TRUTH_PROFILE", "")
	t.Setenv("TRUTH_REPO", "")
	t.Setenv("TRUTH_GIT_SHA", "")

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "truth/index/attempts.db", cfg.IndexPath)
	assert.Equal(t, "profiles/profile_default.yaml", cfg.ProfilePath)
	assert.Equal(t, "truthspine", cfg.Repo)
	assert.Equal(t, "UNKNOWN", cfg.GitSHA)
}

// TestLoad_Overrides verifies that environment variables override
// default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("TRUTH_INDEX_PATH", "/var/lib/truthspine/attempts.db")
	t.Setenv("TRUTH_PROFILE", "/etc/truthspine/profile_prod.yaml")
	t.Setenv("TRUTH_REPO", "marrow-labs/truthspine")
	t.Setenv("TRUTH_GIT_SHA", "0123abcd")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "/var/lib/truthspine/attempts.db", cfg.IndexPath)
	assert.Equal(t, "/etc/truthspine/profile_prod.yaml", cfg.ProfilePath)
	assert.Equal(t, "marrow-labs/truthspine", cfg.Repo)
	assert.Equal(t, "0123abcd", cfg.GitSHA)
}
