package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool
	JWTSecret     string
	JWTIssuer     string

	// Finance job knobs
	PricingBatchSize     int           // Max READY events one pricing run loads
	CashflowCutoffPeriod time.Duration // Default lookback when no cutoff is given
	StandardRateTable    string        // Compact rate table override, empty keeps the built-in schedule
	InvoiceRefPrefix     string        // Leading characters of invoice references
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("JWT_ISSUER", "finance-backend")
	viper.SetDefault("PRICING_BATCH_SIZE", 1000)
	viper.SetDefault("CASHFLOW_CUTOFF_PERIOD", "360h")
	viper.SetDefault("STANDARD_RATE_TABLE", "")
	viper.SetDefault("INVOICE_REF_PREFIX", "F")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	jwtSecret := viper.GetString("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "a-very-secret-key-should-be-longer-and-random" // !! CHANGE IN PRODUCTION !!
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}

	jwtIssuer := viper.GetString("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "finance-backend"
		log.Printf("Warning: JWT_ISSUER not set. Defaulting to %s.\n", jwtIssuer)
	}

	cutoffPeriodStr := viper.GetString("CASHFLOW_CUTOFF_PERIOD")
	cutoffPeriod, err := time.ParseDuration(cutoffPeriodStr)
	if err != nil {
		cutoffPeriod = time.Hour * 24 * 15 // Fortnightly cashflow runs
		if cutoffPeriodStr != "" {
			log.Printf("Warning: Invalid value for CASHFLOW_CUTOFF_PERIOD ('%s'). Defaulting to %s.\n", cutoffPeriodStr, cutoffPeriod.String())
		}
	}

	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")
	cfg.JWTSecret = jwtSecret
	cfg.JWTIssuer = jwtIssuer
	cfg.PricingBatchSize = viper.GetInt("PRICING_BATCH_SIZE")
	cfg.CashflowCutoffPeriod = cutoffPeriod
	cfg.StandardRateTable = viper.GetString("STANDARD_RATE_TABLE")
	cfg.InvoiceRefPrefix = viper.GetString("INVOICE_REF_PREFIX")

	return cfg, nil
}
