package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the server's environment configuration.
type Config struct {
	Env        string
	Port       string
	InstanceID string

	// DatabaseDriver is "mysql" or "sqlite".
	DatabaseDriver string
	SQLitePath     string
	MySQLHost      string
	MySQLPort      string
	MySQLUser      string
	MySQLPassword  string
	MySQLDatabase  string

	RedisAddr     string
	RedisPassword string

	// KafkaBrokers empty means events stay inside this process.
	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret   string
	TokenExpiry time.Duration

	SpotifyClientID     string
	SpotifyClientSecret string

	AllowedOrigins  []string
	DefaultLifetime int // minutes
	MaxLifetime     int
	DefaultMaxUsers int
	// AutoSkipRatio is the share of participants whose dislikes skip a song.
	AutoSkipRatio float64

	SMSGatewayURL string
	SMSGatewayKey string
}

// Load reads a .env file when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	hostname, _ := os.Hostname()
	cfg := &Config{
		Env:        getEnv("ENV", "development"),
		Port:       getEnv("PORT", "8080"),
		InstanceID: getEnv("INSTANCE_ID", hostname),

		DatabaseDriver: getEnv("DB_DRIVER", "sqlite"),
		SQLitePath:     getEnv("SQLITE_PATH", "beatbus.db"),
		MySQLHost:      getEnv("MYSQL_HOST", "127.0.0.1"),
		MySQLPort:      getEnv("MYSQL_PORT", "3306"),
		MySQLUser:      getEnv("MYSQL_USER", ""),
		MySQLPassword:  getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase:  getEnv("MYSQL_DATABASE", "beatbus"),

		RedisAddr:     getEnv("REDIS_HOST", "127.0.0.1") + ":" + getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "room-events"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		TokenExpiry: time.Duration(getEnvInt("TOKEN_EXPIRY_HOURS", 24)) * time.Hour,

		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),

		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		DefaultLifetime: getEnvInt("ROOM_DEFAULT_LIFETIME", 120),
		MaxLifetime:     getEnvInt("ROOM_MAX_LIFETIME", 24*60),
		DefaultMaxUsers: getEnvInt("ROOM_DEFAULT_MAX_USERS", 50),
		AutoSkipRatio:   getEnvFloat("AUTO_SKIP_RATIO", 0.5),

		SMSGatewayURL: getEnv("SMS_GATEWAY_URL", "https://textbelt.com/text"),
		SMSGatewayKey: getEnv("SMS_GATEWAY_KEY", ""),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.DatabaseDriver == "mysql" && cfg.MySQLUser == "" {
		return nil, errors.New("MYSQL_USER is required when DB_DRIVER=mysql")
	}
	if cfg.SpotifyClientID == "" {
		logrus.Warn("SPOTIFY_CLIENT_ID is not set, songs will not be enriched")
	}
	return cfg, nil
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
