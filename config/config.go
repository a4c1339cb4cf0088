package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server settings
	TCPPort  string
	HTTPPort string
	Host     string

	// Storage settings
	StoreDir string

	// JWT settings (HTTP gateway only)
	JWTSecret     string
	JWTExpiration time.Duration

	// Environment
	Environment string

	// CORS settings
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		TCPPort:  getEnv("TCP_PORT", "3001"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Host:     getEnv("HOST", "localhost"),

		// Storage
		StoreDir: getEnv("STORE_DIR", "./store"),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-this-in-production"),
		JWTExpiration: getEnvDuration("JWT_EXPIRATION", "24h"),

		// Environment
		Environment: getEnv("ENVIRONMENT", "development"),

		// CORS
		AllowedOrigins: []string{
			getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
	}

	log.Printf("✅ Configuration loaded:")
	log.Printf("   TCP Port: %s", config.TCPPort)
	log.Printf("   HTTP Port: %s", config.HTTPPort)
	log.Printf("   Store: %s", config.StoreDir)
	log.Printf("   Environment: %s", config.Environment)

	return config
}

// GetTCPAddr returns the TCP server address
func (c *Config) GetTCPAddr() string {
	return ":" + c.TCPPort
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return ":" + c.HTTPPort
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as duration or returns default
func getEnvDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid duration format for %s: %s, using default: %s", key, value, defaultValue)
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

// getEnvInt gets an environment variable as int or returns default
func getEnvInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer format for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}

	return intValue
}
