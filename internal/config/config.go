package config

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds the runtime settings for the servicelink binaries. Every
// field has a development default so a bare `go run` works against the
// local docker-compose stack. The Mongo URI is read by the db package
// directly.
type Config struct {
	HTTPAddr    string
	APIBaseURL  string
	BrokerURL   string
	TopicPrefix string
	UploadDir   string
	TokenPath   string
}

// Load reads configuration from the environment, honoring a .env file if
// one is present in the working directory.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		BrokerURL:   getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "servicelink"),
		UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),
		TokenPath:   getEnv("TOKEN_PATH", ".servicelink-token"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
