package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// Aspire Cloud API credentials. The client validates these before
	// any network call is made.
	AspireBaseURL  string
	AspireClientID string
	AspireAPIKey   string

	// Cron expression for the recurring incremental sync.
	SyncSchedule string

	// SMTP settings for run-failure alerts. Alerts are disabled when
	// SMTPHost is empty.
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	AlertEmails  string // comma-separated recipient list
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "aspire-sync"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "aspire-sync"),

		AspireBaseURL:  getEnv("ASPIRE_BASE_URL", ""),
		AspireClientID: getEnv("ASPIRE_CLIENT_ID", ""),
		AspireAPIKey:   getEnv("ASPIRE_API_KEY", ""),

		SyncSchedule: getEnv("SYNC_SCHEDULE", "0 1 * * *"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		AlertEmails:  getEnv("ALERT_EMAILS", ""),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
