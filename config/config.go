package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	AppName     = "medai-client"
	EnvFileName = "config.env"

	DefaultBaseURL = "https://api.burkido.com/api/v1"
	DefaultDBPath  = "sessions.db"
)

// Config holds the client configuration, read from the environment.
type Config struct {
	// BaseURL is the backend API base URL.
	BaseURL string
	// PackageName scopes requests to an application (tenant).
	PackageName string
	// DBPath is the SQLite session store path.
	DBPath string
	// TokenKey is the passphrase the session store's encryption key is
	// derived from.
	TokenKey string
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// Load reads the configuration from environment variables. MEDAI_TOKEN_KEY
// is required; everything else has a default.
func Load() (Config, error) {
	cfg := Config{
		BaseURL:     envOr("MEDAI_BASE_URL", DefaultBaseURL),
		PackageName: os.Getenv("MEDAI_PACKAGE_NAME"),
		DBPath:      envOr("MEDAI_DB_PATH", DefaultDBPath),
		TokenKey:    os.Getenv("MEDAI_TOKEN_KEY"),
	}

	var missing []string
	if cfg.TokenKey == "" {
		missing = append(missing, "MEDAI_TOKEN_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
