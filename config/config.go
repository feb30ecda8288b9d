package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server  ServerConfig
	Admin   AdminConfig
	JWT     JWTConfig
	Session SessionConfig
	Redis   RedisConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// AdminConfig is the single instructor identity. Password may be plaintext
// or a bcrypt hash. A credentials file ({"username":..., "password":...})
// overrides both when present, matching the classic credentials.json setup.
type AdminConfig struct {
	Username        string
	Password        string
	CredentialsFile string
}

// JWTConfig holds instructor token signing settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// SessionConfig controls session code generation.
type SessionConfig struct {
	CodeLength int
}

// RedisConfig holds optional Redis settings for cross-instance event fan-out.
// An empty Addr disables Redis entirely.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Admin: AdminConfig{
			Username:        getEnv("ADMIN_USERNAME", "admin"),
			Password:        getEnv("ADMIN_PASSWORD", "password"),
			CredentialsFile: getEnv("CREDENTIALS_FILE", "credentials.json"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Session: SessionConfig{
			CodeLength: getEnvInt("SESSION_CODE_LENGTH", 6),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}

	loadCredentialsFile(&cfg.Admin)
	return cfg, nil
}

// loadCredentialsFile overrides the admin identity from a JSON file when one
// exists. A missing or malformed file leaves the env/default identity alone.
func loadCredentialsFile(admin *AdminConfig) {
	if admin.CredentialsFile == "" {
		return
	}
	raw, err := os.ReadFile(admin.CredentialsFile)
	if err != nil {
		return
	}
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return
	}
	if strings.TrimSpace(creds.Username) != "" && strings.TrimSpace(creds.Password) != "" {
		admin.Username = creds.Username
		admin.Password = creds.Password
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
