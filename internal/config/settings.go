package config

import (
	"strings"

	"github.com/spf13/viper"
)

// ProcessorSettings are the payment processor credentials.
type ProcessorSettings struct {
	Host        string
	StoreID     string
	APIKey      string
	RedirectURL string
	SpeedPolicy string
}

// Processor reads the processor credentials. It is called on every request
// so values that arrive after startup are picked up.
func Processor() (ProcessorSettings, error) {
	values, err := requireStrings("payment processor", KeyProcessorHost, KeyProcessorStoreID, KeyProcessorAPIKey)
	if err != nil {
		return ProcessorSettings{}, err
	}
	return ProcessorSettings{
		Host:        strings.TrimRight(values[KeyProcessorHost], "/"),
		StoreID:     values[KeyProcessorStoreID],
		APIKey:      values[KeyProcessorAPIKey],
		RedirectURL: viper.GetString(KeyProcessorRedirectURL),
		SpeedPolicy: viper.GetString(KeyProcessorSpeedPolicy),
	}, nil
}

// LightningMethodIDs returns the configured Lightning discriminators, or nil
// when unset so the caller falls back to its defaults.
func LightningMethodIDs() []string {
	raw := viper.GetString(KeyLightningMethodIDs)
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// MailSettings are the SMTP transport settings.
type MailSettings struct {
	Host     string
	Port     int
	Secure   bool
	User     string
	Password string
	From     string
}

// Mail reads the SMTP settings at send time.
func Mail() (MailSettings, error) {
	values, err := requireStrings("mail transport", KeySMTPHost, KeySMTPUser, KeySMTPPass, KeySMTPFrom)
	if err != nil {
		return MailSettings{}, err
	}
	return MailSettings{
		Host:     values[KeySMTPHost],
		Port:     viper.GetInt(KeySMTPPort),
		Secure:   viper.GetBool(KeySMTPSecure),
		User:     values[KeySMTPUser],
		Password: values[KeySMTPPass],
		From:     values[KeySMTPFrom],
	}, nil
}
