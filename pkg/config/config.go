package config

import "os"

// Config holds engine configuration.
type Config struct {
	LogLevel    string
	IndexPath   string
	ProfilePath string

	// Producer identity stamped into every artifact envelope.
	Repo   string
	GitSHA string
}

// Load loads configuration from environment variables. Storage selection
// is handled separately by the artifacts factory.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	indexPath := os.Getenv("TRUTH_INDEX_PATH")
	if indexPath == "" {
		indexPath = "truth/index/attempts.db"
	}

	profilePath := os.Getenv("TRUTH_PROFILE")
	if profilePath == "" {
		profilePath = "profiles/profile_default.yaml"
	}

	repo := os.Getenv("TRUTH_REPO")
	if repo == "" {
		repo = "truthspine"
	}

	gitSHA := os.Getenv("TRUTH_GIT_SHA")
	if gitSHA == "" {
		gitSHA = "UNKNOWN"
	}

	return &Config{
		LogLevel:    logLevel,
		IndexPath:   indexPath,
		ProfilePath: profilePath,
		Repo:        repo,
		GitSHA:      gitSHA,
	}
}
