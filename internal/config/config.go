package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	EventChannel          string
	AuthSecret            string
	AccessTokenTTLMinutes int
	OwnerPIN              string
	DebtAttributionRate   float64
	TrendLimit            int
}

// Load reads configuration from a .env file (if present) and the process
// environment, with the environment taking precedence.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: could not read .env file: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	debtRate, err := strconv.ParseFloat(getEnv("DEBT_ATTRIBUTION_RATE", "0.3"), 64)
	if err != nil || debtRate <= 0 || debtRate > 1 {
		debtRate = 0.3
	}
	trendLimit, err := strconv.Atoi(getEnv("TREND_LIMIT", "5"))
	if err != nil || trendLimit < 1 {
		trendLimit = 5
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		EventChannel:          getEnv("EVENT_CHANNEL", "ledgerdesk:events"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		OwnerPIN:              strings.TrimSpace(os.Getenv("OWNER_PIN")),
		DebtAttributionRate:   debtRate,
		TrendLimit:            trendLimit,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
