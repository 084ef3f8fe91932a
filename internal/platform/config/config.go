// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	PostgresURL   string
	Redis         RedisConfig
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string
	// AdminID bootstraps the access-control registry; without it no caller
	// could ever grant roles. Empty means a fresh random admin whose id is
	// logged at startup.
	AdminID string
	// RelayerIDs are pre-authorized decryption relayer identities.
	RelayerIDs []string
	// DegradedDecryption lets the original requester submit decrypted
	// values itself when no relayer is deployed. Test and demo
	// environments only.
	DegradedDecryption bool
}

// RedisConfig holds Redis connection tuning. An empty URL disables Redis and
// the engine falls back to in-memory pending-decryption markers.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("DATALEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:               addr,
		PostgresURL:        os.Getenv("POSTGRES_URL"),
		Redis:              redisFromEnv(),
		KafkaBrokers:       envList("KAFKA_BROKERS"),
		KafkaTopic:         os.Getenv("KAFKA_AUDIT_TOPIC"),
		JWTSigningKey:      jwtSigningKey,
		AdminID:            os.Getenv("DATALEDGER_ADMIN_ID"),
		RelayerIDs:         envList("DATALEDGER_RELAYER_IDS"),
		DegradedDecryption: os.Getenv("DEGRADED_DECRYPTION") == "true",
	}
}

func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     envInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}
