package config // package config loads application configuration from environment variables

import (
	"log"     // log reports configuration errors and halts execution during startup
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses the gateway timeout duration
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Secrets (JWT, ticket token key, gateway
// keys) never have defaults; the process refuses to start without them.
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	JWTSecret      string        // secret shared with the auth collaborator for verifying JWTs
	TicketSecret   string        // HMAC key for deriving ticket admission tokens
	Currency       string        // ISO currency code used for all payments
	GatewayTimeout time.Duration // bound on outbound payment-provider calls
	StripeKey      string        // Stripe secret key; empty selects the mock gateway
	StripeWebhook  string        // Stripe webhook signing secret
	LogLevel       string        // logrus level (debug/info/warn/error)
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must() and missing values cause the program
// to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		TicketSecret:   must("TICKET_TOKEN_SECRET"),
		Currency:       envStr("CURRENCY", "usd"),
		GatewayTimeout: envDur("GATEWAY_TIMEOUT", 5*time.Second),
		StripeKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhook:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
	}
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

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "off":
		return false
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
