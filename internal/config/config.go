package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the frozen runtime configuration. It is built once at startup
// and passed by value; nothing mutates it afterwards.
type Config struct {
	Env                 string `mapstructure:"env"`
	HTTPAddr            string `mapstructure:"http_addr"`
	DatabaseURL         string `mapstructure:"database_url"`
	JWTSecret           string `mapstructure:"jwt_secret"`
	JWTAlgorithm        string `mapstructure:"jwt_algorithm"`
	AccessTokenMinutes  int    `mapstructure:"access_token_minutes"`
	RefreshTokenDays    int    `mapstructure:"refresh_token_days"`
	FrontendURL         string `mapstructure:"frontend_url"`
	SecretEncryptionKey string `mapstructure:"secret_encryption_key"`
	APIV1Prefix         string `mapstructure:"api_v1_prefix"`
}

// Load reads configuration from the environment (BODEGA_ prefix) with
// development defaults. BODEGA_DATABASE_URL is the only required setting;
// callers decide whether an empty value is fatal.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BODEGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "dev")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "change-me")
	v.SetDefault("jwt_algorithm", "HS256")
	v.SetDefault("access_token_minutes", 30)
	v.SetDefault("refresh_token_days", 30)
	v.SetDefault("frontend_url", "http://localhost:4200")
	v.SetDefault("secret_encryption_key", "change-me-secret-key")
	v.SetDefault("api_v1_prefix", "/api/v1")

	// AutomaticEnv alone does not surface env-only keys through Unmarshal,
	// so touch each known key explicitly.
	for _, key := range []string{
		"env", "http_addr", "database_url", "jwt_secret", "jwt_algorithm",
		"access_token_minutes", "refresh_token_days", "frontend_url",
		"secret_encryption_key", "api_v1_prefix",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
