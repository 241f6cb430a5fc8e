// Package config loads runtime configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store modes accepted in STORE_MODE.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds the values needed to wire the server.  Required variables are
// enforced by must(); the rest fall back to defaults.
type Config struct {
	Env            string // APP_ENV, e.g. "dev" or "prod"
	Port           string // APP_PORT
	LogLevel       string // LOG_LEVEL, a loggo specification such as "<root>=INFO"
	StoreMode      string // STORE_MODE, mysql or memory
	DBUser         string
	DBPass         string
	DBHost         string
	DBPort         string
	DBName         string
	DBMaxOpen      int           // DB_MAX_OPEN_CONNS
	DBConnLifetime time.Duration // DB_CONN_MAX_LIFETIME
	TxRetries      int           // TX_RETRY_ATTEMPTS, attempts on deadlock or lock timeout
	TxRetryDelay   time.Duration // TX_RETRY_DELAY, first backoff step
	JWTSecret      string
	// AccessTTLMin is ACCESS_TOKEN_TTL_MIN.  The role claim inside an access
	// token is only a hint; protected routes re-read the account's role.
	AccessTTLMin   int
	RefreshTTLDays int // REFRESH_TOKEN_TTL_DAYS
	BcryptCost     int
	AdminUsername  string // ADMIN_USERNAME, bootstrap account created when missing
	AdminPassword  string // ADMIN_PASSWORD
	AdminName      string // ADMIN_NAME
}

// Load reads the configuration.  Database settings are only required when
// the MySQL store is selected.
func Load() Config {
	c := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		LogLevel:       envStr("LOG_LEVEL", "<root>=INFO"),
		StoreMode:      strings.ToLower(envStr("STORE_MODE", StoreMySQL)),
		DBPass:         os.Getenv("DB_PASS"),
		DBMaxOpen:      envInt("DB_MAX_OPEN_CONNS", 20),
		DBConnLifetime: envDur("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		TxRetries:      envInt("TX_RETRY_ATTEMPTS", 3),
		TxRetryDelay:   envDur("TX_RETRY_DELAY", 20*time.Millisecond),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),
		AdminUsername:  os.Getenv("ADMIN_USERNAME"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		AdminName:      os.Getenv("ADMIN_NAME"),
	}
	switch c.StoreMode {
	case StoreMySQL:
		c.DBUser = must("DB_USER")
		c.DBHost = must("DB_HOST")
		c.DBPort = must("DB_PORT")
		c.DBName = must("DB_NAME")
	case StoreMemory:
	default:
		log.Fatalf("invalid STORE_MODE %q (want mysql or memory)", c.StoreMode)
	}
	if c.TxRetries < 1 {
		c.TxRetries = 1
	}
	return c
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
