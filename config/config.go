package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"3000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DBHost string `envconfig:"DB_HOST" default:"localhost"`
	DBPort string `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"postgres"`
	DBPass string `envconfig:"DB_PASS" default:"postgres"`
	DBName string `envconfig:"DB_NAME" default:"easydeals"`

	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	KafkaBroker string `envconfig:"KAFKA_BROKER" default:"localhost:9092"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"changeme"`

	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:5173"`
	BackendURL  string `envconfig:"BACKEND_URL" default:"http://localhost:3000"`

	TilopayBaseURL         string `envconfig:"TILOPAY_BASE_URL" default:"https://app.tilopay.com/api"`
	TilopayAPIKey          string `envconfig:"TILOPAY_API_KEY"`
	TilopaySecretKey       string `envconfig:"TILOPAY_SECRET_KEY"`
	TilopayPlatformKey     string `envconfig:"TILOPAY_PLATFORM_KEY"`
	PlatformSubmerchantKey string `envconfig:"TILOPAY_PLATFORM_SUBMERCHANT_KEY"`

	// Platform pricing defaults. Injected into the pricing and split
	// calculators so tests can vary them freely.
	TaxRate            decimal.Decimal `envconfig:"TAX_RATE" default:"0.07"`
	CommissionRate     decimal.Decimal `envconfig:"COMMISSION_RATE" default:"0.15"`
	DriverCutRate      decimal.Decimal `envconfig:"DRIVER_CUT_RATE" default:"0.80"`
	DefaultDeliveryFee decimal.Decimal `envconfig:"DEFAULT_DELIVERY_FEE" default:"5.00"`

	PaymentExpiryMinutes int  `envconfig:"PAYMENT_EXPIRY_MINUTES" default:"60"`
	StrictStatusSequence bool `envconfig:"STRICT_STATUS_SEQUENCE" default:"false"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
