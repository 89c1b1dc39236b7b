package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr    string
	BackendURL    string
	RedisAddr     string
	RabbitURL     string
	MongoURI      string
	SessionSecret string
	CookieSecure  bool
	OTLPEndpoint  string

	BackendTimeout      time.Duration
	CartTTL             time.Duration
	PaymentPollInterval time.Duration
	PaymentPollAttempts int
	// upper bound for one success page: the poller run plus loading tickets;
	// also drives the HTTP write timeout
	PaymentPollBudget time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		BackendURL:    getenv("BACKEND_URL", "http://localhost:3001"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RabbitURL:     os.Getenv("RABBIT_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
		SessionSecret: getenv("SESSION_SECRET", "dev-session-secret-change-me-32b"),
		CookieSecure:  os.Getenv("COOKIE_SECURE") == "true",
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		BackendTimeout:      duration("BACKEND_TIMEOUT", 10*time.Second),
		CartTTL:             duration("CART_TTL", 7*24*time.Hour),
		PaymentPollInterval: duration("PAYMENT_POLL_INTERVAL", 2*time.Second),
		PaymentPollAttempts: integer("PAYMENT_POLL_ATTEMPTS", 20),
	}
	cfg.PaymentPollBudget = PollBudget(cfg.PaymentPollInterval, cfg.PaymentPollAttempts, cfg.BackendTimeout)

	return cfg, nil
}

// PollBudget is the worst case for one success page. Each attempt waits for
// the slower of the tick and the status call; confirming tickets can take two
// more calls.
func PollBudget(interval time.Duration, attempts int, backendTimeout time.Duration) time.Duration {
	step := interval
	if backendTimeout > step {
		step = backendTimeout
	}
	return step*time.Duration(attempts) + 2*backendTimeout
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return def
	}
	return d
}

func integer(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
