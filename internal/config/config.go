package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	StoreDriver            string
	DatabaseURL            string
	MongoURI               string
	MongoDatabase          string
	MongoTransactions      bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	BillingCacheTTLSeconds int
	LockTTLSeconds         int
	ConflictRetries        int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerPIN             string
	LogLevel               string
	LogFormat              string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL := positiveInt("BILLING_CACHE_TTL_SECONDS", 30)
	lockTTL := positiveInt("LOCK_TTL_SECONDS", 15)
	retries := positiveInt("CONFLICT_RETRIES", 3)
	tokenTTL := positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)
	mongoTx, err := strconv.ParseBool(getEnv("MONGO_TRANSACTIONS", "true"))
	if err != nil {
		mongoTx = true
	}

	cfg := Config{
		Port:                   getEnv("PORT", "5000"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StoreDriver:            strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER"))),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		MongoURI:               os.Getenv("MONGO_URI"),
		MongoDatabase:          getEnv("MONGO_DATABASE", "backoffice"),
		MongoTransactions:      mongoTx,
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		BillingCacheTTLSeconds: cacheTTL,
		LockTTLSeconds:         lockTTL,
		ConflictRetries:        retries,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		ManagerPIN:             strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = inferDriver(cfg)
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func inferDriver(c Config) string {
	switch {
	case c.MongoURI != "":
		return DriverMongo
	case c.DatabaseURL != "":
		return DriverPostgres
	default:
		return DriverMemory
	}
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
