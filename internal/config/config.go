package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	RedisURL            string
	CatalogueCSV        string        // CATALOGUE_CSV; when set the catalogue is read from this file instead of the database
	RefreshInterval     time.Duration // 0 disables scheduled refreshes
	AdminKey            string        // ADMIN_KEY guards catalogue refresh and health reset
	VectorStoreURL      string
	FormatterURL        string
	SuggestTimeout      time.Duration
	FormatTimeout       time.Duration
	ConversationTTL     time.Duration
	ResultLimit         int
	FrontendURLEndsWith string
	AllowCrossSiteDev   bool
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("REFRESH_INTERVAL", "6h")
	viper.SetDefault("SUGGEST_TIMEOUT", "2s")
	viper.SetDefault("FORMAT_TIMEOUT", "3s")
	viper.SetDefault("CONVERSATION_TTL", "30m")
	viper.SetDefault("RESULT_LIMIT", 50)

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		DatabaseURL:         viper.GetString("DATABASE_URL"),
		RedisURL:            viper.GetString("REDIS_URL"),
		CatalogueCSV:        viper.GetString("CATALOGUE_CSV"),
		RefreshInterval:     viper.GetDuration("REFRESH_INTERVAL"),
		AdminKey:            viper.GetString("ADMIN_KEY"),
		VectorStoreURL:      viper.GetString("VECTOR_STORE_URL"),
		FormatterURL:        viper.GetString("FORMATTER_URL"),
		SuggestTimeout:      viper.GetDuration("SUGGEST_TIMEOUT"),
		FormatTimeout:       viper.GetDuration("FORMAT_TIMEOUT"),
		ConversationTTL:     viper.GetDuration("CONVERSATION_TTL"),
		ResultLimit:         viper.GetInt("RESULT_LIMIT"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
	}, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.Env == "production" }
