// Package config loads server configuration from the environment.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

func init() {
	// Auto-load .env file if present (don't override existing env vars)
	loadDotEnv(".env")
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		// Remove surrounding quotes
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

const (
	defaultPort              = "4400"
	defaultEnvironment       = "development"
	defaultUploadsDir        = "uploads/attachments"
	defaultMigrationsDir     = "migrations"
	defaultJWTTTL            = 24 * time.Hour
	defaultInvitationTTL     = 7 * 24 * time.Hour
	defaultProjectDeleteRole = "owner"
)

type Config struct {
	Port          string
	DatabaseURL   string
	Environment   string
	JWTSecret     string
	JWTTTL        time.Duration
	UploadsDir    string
	MigrationsDir string
	InvitationTTL time.Duration

	// ProjectDeleteRole is the minimum project role allowed to archive a
	// project: "owner" (default) or "admin".
	ProjectDeleteRole string

	// WSAllowedOrigins lists extra origins accepted on websocket upgrades,
	// beyond same-host and loopback. Entries may be full origins or
	// wildcard hosts like *.example.com.
	WSAllowedOrigins []string
}

func Load() (Config, error) {
	cfg := Config{
		Port:        firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), defaultPort),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Environment: resolveEnvironment(),
		JWTSecret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),
		UploadsDir: firstNonEmpty(
			strings.TrimSpace(os.Getenv("UPLOADS_DIR")),
			defaultUploadsDir,
		),
		MigrationsDir: firstNonEmpty(
			strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")),
			defaultMigrationsDir,
		),
	}

	jwtTTL, err := parseDuration("JWT_TTL", defaultJWTTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.JWTTTL = jwtTTL

	invitationTTL, err := parseDuration("INVITATION_TTL", defaultInvitationTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.InvitationTTL = invitationTTL

	deleteRole := strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("PROJECT_DELETE_ROLE")),
		defaultProjectDeleteRole,
	))
	if deleteRole != "owner" && deleteRole != "admin" {
		return Config{}, fmt.Errorf("PROJECT_DELETE_ROLE must be owner or admin")
	}
	cfg.ProjectDeleteRole = deleteRole

	cfg.WSAllowedOrigins = splitList(os.Getenv("WS_ALLOWED_ORIGINS"))

	if cfg.JWTSecret == "" && isNonDevelopment(cfg.Environment) {
		return Config{}, fmt.Errorf("JWT_SECRET is required outside development")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "issuedeck-dev-secret"
	}

	return cfg, nil
}

func resolveEnvironment() string {
	return strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("APP_ENV")),
		strings.TrimSpace(os.Getenv("ENVIRONMENT")),
		strings.TrimSpace(os.Getenv("GO_ENV")),
		defaultEnvironment,
	))
}

func isNonDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}

func parseDuration(name string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}

	return parsed, nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
