package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	pkgconfig "github.com/skyfare/FlightBookingGo/pkg/config"
	"github.com/skyfare/FlightBookingGo/pkg/database"
)

// Config holds all booking-saga service configuration, loaded from the
// environment.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"booking-saga"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Postgres
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"booking"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"booking_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"booking"`
	PostgresSSLMode  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"25"`
	PostgresMinConns int32  `env:"POSTGRES_MIN_CONNS" envDefault:"5"`

	// Redis (saga status read cache)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Step participant base URLs. The inventory participant is served
	// in-process by default, so its URL points back at this service.
	InventoryServiceURL string `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8080"`
	PaymentServiceURL   string `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:8081"`
	LoyaltyServiceURL   string `env:"LOYALTY_SERVICE_URL" envDefault:"http://localhost:8082"`
	BookingServiceURL   string `env:"BOOKING_SERVICE_URL" envDefault:"http://localhost:8083"`

	// Per-step timeouts. StepTimeout is the default; a zero per-step value
	// falls back to it.
	StepTimeout             time.Duration `env:"STEP_TIMEOUT" envDefault:"30s"`
	ReserveSeatTimeout      time.Duration `env:"RESERVE_SEAT_TIMEOUT" envDefault:"0"`
	AuthorizePaymentTimeout time.Duration `env:"AUTHORIZE_PAYMENT_TIMEOUT" envDefault:"0"`
	AwardMilesTimeout       time.Duration `env:"AWARD_MILES_TIMEOUT" envDefault:"0"`
	ConfirmBookingTimeout   time.Duration `env:"CONFIRM_BOOKING_TIMEOUT" envDefault:"0"`

	// Circuit breaker for step calls.
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`
	BreakerOpenTimeout  time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	// Seat inventory
	SeatHoldTTL              time.Duration `env:"SEAT_HOLD_TTL" envDefault:"15m"`
	ReservationSweepInterval time.Duration `env:"RESERVATION_SWEEP_INTERVAL" envDefault:"1m"`

	// Saga status cache
	StatusCacheTTL time.Duration `env:"STATUS_CACHE_TTL" envDefault:"5s"`

	// Test-only hook. When false, failure injection in requests is ignored.
	EnableFailureInjection bool `env:"ENABLE_FAILURE_INJECTION" envDefault:"false"`

	// Tracing
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules the env tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("STEP_TIMEOUT must be positive, got %s", c.StepTimeout)
	}
	if c.SeatHoldTTL <= 0 {
		return fmt.Errorf("SEAT_HOLD_TTL must be positive, got %s", c.SeatHoldTTL)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1], got %f", c.BreakerFailureRatio)
	}
	for name, raw := range map[string]string{
		"INVENTORY_SERVICE_URL": c.InventoryServiceURL,
		"PAYMENT_SERVICE_URL":   c.PaymentServiceURL,
		"LOYALTY_SERVICE_URL":   c.LoyaltyServiceURL,
		"BOOKING_SERVICE_URL":   c.BookingServiceURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	return nil
}

// PostgresConfig builds the pool configuration for pkg/database.
func (c *Config) PostgresConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPassword,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSLMode,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        c.PostgresMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// RedisConfig builds the Redis client configuration.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// ParticipantURL returns the base URL for the given step participant.
func (c *Config) ParticipantURL(p domain.Participant) string {
	switch p {
	case domain.ParticipantInventory:
		return c.InventoryServiceURL
	case domain.ParticipantPayment:
		return c.PaymentServiceURL
	case domain.ParticipantLoyalty:
		return c.LoyaltyServiceURL
	case domain.ParticipantBooking:
		return c.BookingServiceURL
	default:
		return ""
	}
}

// TimeoutFor returns the timeout for the given step, falling back to the
// default step timeout when no override is set.
func (c *Config) TimeoutFor(step domain.StepName) time.Duration {
	var d time.Duration
	switch step {
	case domain.StepReserveSeat:
		d = c.ReserveSeatTimeout
	case domain.StepAuthorizePayment:
		d = c.AuthorizePaymentTimeout
	case domain.StepAwardMiles:
		d = c.AwardMilesTimeout
	case domain.StepConfirmBooking:
		d = c.ConfirmBookingTimeout
	}
	if d <= 0 {
		return c.StepTimeout
	}
	return d
}
