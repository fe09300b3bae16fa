package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	CORSOrigins string
	Environment string

	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Operator console settings.
	BackendURL      string
	RefreshInterval time.Duration
	RecentLimit     int
	TimelineLimit   int
	AlertFeedSize   int
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// DSNForLog is the DSN with the password masked.
func (c *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
		Environment:     getEnv("ENVIRONMENT", "production"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "exameye"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		BackendURL:      getEnv("BACKEND_URL", "http://localhost:8080"),
		RefreshInterval: time.Duration(getEnvInt("REFRESH_INTERVAL_SEC", 5)) * time.Second,
		RecentLimit:     getEnvInt("RECENT_VIOLATIONS_LIMIT", 50),
		TimelineLimit:   getEnvInt("TIMELINE_LIMIT", 60),
		AlertFeedSize:   getEnvInt("ALERT_FEED_SIZE", 20),
	}

	if cfg.DBPassword == "" {
		fmt.Println("WARNING: DB_PASSWORD is not set!")
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
