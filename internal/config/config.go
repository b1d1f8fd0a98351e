package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the settings the server needs once at startup.
type Config struct {
	Port        string `mapstructure:"PORT"`
	DSN         string `mapstructure:"DSN"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	AdminUser         string `mapstructure:"ADMIN_USERNAME"`
	AdminPasswordHash string `mapstructure:"ADMIN_PASSWORD_HASH"`
}

// Keys read at call time rather than at startup.
const (
	KeyProcessorHost        = "BTCPAY_HOST"
	KeyProcessorStoreID     = "BTCPAY_STORE_ID"
	KeyProcessorAPIKey      = "BTCPAY_API_KEY"
	KeyProcessorRedirectURL = "BTCPAY_REDIRECT_URL"
	KeyProcessorSpeedPolicy = "BTCPAY_SPEED_POLICY"
	KeyLightningMethodIDs   = "LIGHTNING_METHOD_IDS"

	KeySMTPHost   = "SMTP_HOST"
	KeySMTPPort   = "SMTP_PORT"
	KeySMTPSecure = "SMTP_SECURE"
	KeySMTPUser   = "SMTP_USER"
	KeySMTPPass   = "SMTP_PASS"
	KeySMTPFrom   = "SMTP_FROM"
)

func init() {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("CORS_ORIGINS", "*")
	viper.SetDefault(KeyProcessorSpeedPolicy, "MediumSpeed")
	viper.SetDefault(KeySMTPPort, 587)
	viper.SetDefault(KeySMTPSecure, false)
}

// Load reads config.env from the working directory, with environment
// variables taking precedence. A missing config.env is not an error.
func Load() (config Config, err error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, errors.Wrap(err, "cannot read config.env")
		}
	}

	// Unmarshal only sees keys viper already knows about, so bind the ones
	// that may only exist in the environment.
	for _, key := range []string{"PORT", "DSN", "REDIS_URL", "JWT_SECRET", "LOG_LEVEL", "LOG_FORMAT", "CORS_ORIGINS", "ADMIN_USERNAME", "ADMIN_PASSWORD_HASH"} {
		if err = viper.BindEnv(key); err != nil {
			return config, errors.Wrapf(err, "cannot bind %s", key)
		}
	}

	err = viper.Unmarshal(&config)
	return
}

// MissingError reports required settings that have no value. It is a
// configuration problem, not a runtime failure of the component.
type MissingError struct {
	Component string
	Keys      []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s", e.Component, strings.Join(e.Keys, ", "))
}

// IsMissing reports whether err is (or wraps) a *MissingError.
func IsMissing(err error) bool {
	var missing *MissingError
	return errors.As(err, &missing)
}

func requireStrings(component string, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	var missing []string
	for _, key := range keys {
		v := strings.TrimSpace(viper.GetString(key))
		if v == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = v
	}
	if len(missing) > 0 {
		return nil, &MissingError{Component: component, Keys: missing}
	}
	return values, nil
}
