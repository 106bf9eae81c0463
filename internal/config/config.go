package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env           string
	Port          string
	DatabaseURL   string
	RedisURL      string
	SessionSecret string
	// FrontendSuffix allows CORS for any origin ending with this suffix.
	FrontendSuffix string

	// Market limits. Price floors differ per listing type and are
	// deliberately configurable rather than constants.
	AskPriceFloor float64
	BidPriceFloor float64
	NotesMaxLen   int
	QtyPerPost    int
	// LiveAsksPerItem caps a user's live asks on a single item.
	LiveAsksPerItem int
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ASK_PRICE_FLOOR", 0.01)
	viper.SetDefault("BID_PRICE_FLOOR", 0.50)
	viper.SetDefault("MARKET_NOTES_MAX_LEN", 500)
	viper.SetDefault("MARKET_QTY_LIMIT", 5)
	viper.SetDefault("MARKET_LIVE_ASKS_PER_ITEM", 10)

	return &Config{
		Env:             viper.GetString("APP_ENV"),
		Port:            viper.GetString("PORT"),
		DatabaseURL:     viper.GetString("DATABASE_URL"),
		RedisURL:        viper.GetString("REDIS_URL"),
		SessionSecret:   viper.GetString("SESSION_SECRET"),
		FrontendSuffix:  viper.GetString("FRONTEND_URL_SUFFIX"),
		AskPriceFloor:   viper.GetFloat64("ASK_PRICE_FLOOR"),
		BidPriceFloor:   viper.GetFloat64("BID_PRICE_FLOOR"),
		NotesMaxLen:     viper.GetInt("MARKET_NOTES_MAX_LEN"),
		QtyPerPost:      viper.GetInt("MARKET_QTY_LIMIT"),
		LiveAsksPerItem: viper.GetInt("MARKET_LIVE_ASKS_PER_ITEM"),
	}, nil
}
