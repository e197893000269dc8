package utils

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// GetDatabaseDSN returns the DSN for the current APP_ENV. An explicit
// DATABASE_URL always wins; otherwise the per-environment variable is used and,
// failing that, a DSN is assembled from the libpq PG* variables.
func GetDatabaseDSN() (string, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}

	appEnv := GetEnv("APP_ENV", "development")

	var dsn string
	switch appEnv {
	case "production":
		dsn = os.Getenv("PROD_POSTGRES_DSN")
	case "test":
		dsn = os.Getenv("TEST_POSTGRES_DSN")
	default:
		dsn = os.Getenv("LOCAL_POSTGRES_DSN")
	}
	if dsn != "" {
		log.Printf("Resolved DSN for environment '%s' (value hidden)", appEnv)
		return dsn, nil
	}

	host := os.Getenv("PGHOST")
	port := GetEnvOrDefault("PGPORT", "5432")
	user := os.Getenv("PGUSER")
	password := os.Getenv("PGPASSWORD")
	name := os.Getenv("PGDATABASE")
	if host == "" || user == "" || name == "" {
		return "", fmt.Errorf("database DSN is not configured for environment %s (DATABASE_URL, *_POSTGRES_DSN or PG* required)", appEnv)
	}
	log.Printf("Constructed DSN from PG* variables for environment '%s' (password hidden)", appEnv)
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, user, password, name, port), nil
}

// GetEnv fetches environment variables with a fallback default
func GetEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvOrDefault is GetEnv that also treats an empty value as unset.
func GetEnvOrDefault(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// SanitizeURL hides api keys embedded in provider URLs before they reach the logs.
func SanitizeURL(rawURL string) string {
	for _, marker := range []string{"api-key=", "apikey=", "/v2/"} {
		if idx := strings.Index(rawURL, marker); idx != -1 {
			return rawURL[:idx+len(marker)] + "HIDDEN_FOR_LOGS"
		}
	}
	return rawURL
}
