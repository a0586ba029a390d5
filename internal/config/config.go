package config // package config loads application configuration from environment variables

import (
	"encoding/hex"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/discount"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify terminal tokens
	TokenTTL  time.Duration
	AMQPURL   string // RabbitMQ URL, empty disables events
	Migrate   bool   // create tables at startup
	Policy    Policy
}

// Policy holds the business constants of the engine.  The defaults are the
// house rules; a branch may override them through the environment.
type Policy struct {
	DefaultTaxRate        decimal.Decimal // percent applied when no rate is configured
	LoyaltyMinOrder       decimal.Decimal // smallest subtotal that may redeem points
	LoyaltyBlockPoints    int             // points per redemption block
	LoyaltyBlockValue     decimal.Decimal // discount per redemption block
	DuplicateRetryBackoff time.Duration   // wait before the single duplicate-key retry
	LoyaltyLookupTimeout  time.Duration   // bound on loyalty balance lookups
	CartTTL               time.Duration   // idle lifetime of a terminal cart
	CartSealKey           []byte          // 32 byte key sealing customer data in carts
	ReconcileInterval     time.Duration   // how often stale resources are swept
	IdempotencyTTL        time.Duration   // lifetime of settlement guards and message markers
}

// Load reads configuration values from the environment, after loading an
// optional .env file.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
	return Config{
		Env:       must("APP_ENV"),
		Port:      must("APP_PORT"),
		DBUser:    must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"),
		DBHost:    must("DB_HOST"),
		DBPort:    must("DB_PORT"),
		DBName:    must("DB_NAME"),
		JWTSecret: must("JWT_SECRET"),
		TokenTTL:  envDur("TERMINAL_TOKEN_TTL", 12*time.Hour),
		AMQPURL:   envStr("AMQP_URL", ""),
		Migrate:   envBool("DB_MIGRATE", true),
		Policy:    LoadPolicy(),
	}
}

// LoadPolicy reads the business policy block with its defaults.
func LoadPolicy() Policy {
	return Policy{
		DefaultTaxRate:        envDecimal("DEFAULT_TAX_RATE", decimal.Zero),
		LoyaltyMinOrder:       envDecimal("LOYALTY_MIN_ORDER", decimal.NewFromInt(1000)),
		LoyaltyBlockPoints:    envInt("LOYALTY_BLOCK_POINTS", 2000),
		LoyaltyBlockValue:     envDecimal("LOYALTY_BLOCK_VALUE", decimal.NewFromInt(20)),
		DuplicateRetryBackoff: envDur("DUPLICATE_RETRY_BACKOFF", 150*time.Millisecond),
		LoyaltyLookupTimeout:  envDur("LOYALTY_LOOKUP_TIMEOUT", 800*time.Millisecond),
		CartTTL:               envDur("CART_TTL", 12*time.Hour),
		CartSealKey:           envKey("CART_SEAL_KEY"),
		ReconcileInterval:     envDur("RECONCILE_INTERVAL", time.Minute),
		IdempotencyTTL:        envDur("IDEMPOTENCY_TTL", 30*time.Second),
	}
}

// Redemption returns the loyalty redemption rule of the policy.  A block
// size below one falls back to the house default.
func (p Policy) Redemption() discount.Policy {
	r := discount.Policy{MinOrder: p.LoyaltyMinOrder, BlockPoints: p.LoyaltyBlockPoints, BlockValue: p.LoyaltyBlockValue}
	if r.BlockPoints < 1 {
		r.BlockPoints = discount.DefaultPolicy().BlockPoints
	}
	return r
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envDecimal(k string, d decimal.Decimal) decimal.Decimal {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := decimal.NewFromString(v)
	if err != nil || n.IsNegative() {
		log.Printf("invalid decimal for %s: %q, using %s", k, v, d)
		return d
	}
	return n
}

// envKey decodes a hex encoded 32 byte key.  An empty value yields nil and
// the server falls back to a per-process key.
func envKey(k string) []byte {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	b, err := hex.DecodeString(v)
	if err != nil || len(b) != 32 {
		log.Fatalf("%s must be 64 hex characters", k)
	}
	return b
}
