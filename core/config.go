package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultSignatureHeader       = "X-Postmark-Signature"
	DefaultCorrelationWindowDays = 14
	DefaultConnectTimeout        = 10 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
)

type WebhookConfig struct {
	// Secret enables signature verification when non-empty. An empty
	// secret means every request body is accepted unverified; this is the
	// deliberate opt-in posture of the source integration, not a default
	// worth weakening further.
	Secret          string `koanf:"secret" mapstructure:"secret"`
	SignatureHeader string `koanf:"signature_header" mapstructure:"signature_header"`
}

type CorrelationConfig struct {
	Channel    string `koanf:"channel" mapstructure:"channel"`
	WindowDays int    `koanf:"window_days" mapstructure:"window_days"`
}

// Window is the trailing lookback for the recipient fallback search.
func (c CorrelationConfig) Window() time.Duration {
	days := c.WindowDays
	if days <= 0 {
		days = DefaultCorrelationWindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}

type CRMConfig struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	ClientID       string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret   string        `koanf:"client_secret" mapstructure:"client_secret"`
	Username       string        `koanf:"username" mapstructure:"username"`
	Password       string        `koanf:"password" mapstructure:"password"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

// Enabled mirrors the source integration: the CRM side channel runs only
// when every credential is present.
func (c CRMConfig) Enabled() bool {
	return strings.TrimSpace(c.BaseURL) != "" &&
		strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != "" &&
		strings.TrimSpace(c.Username) != "" &&
		strings.TrimSpace(c.Password) != ""
}

func (c CRMConfig) partiallyConfigured() bool {
	values := []string{c.BaseURL, c.ClientID, c.ClientSecret, c.Username, c.Password}
	set := 0
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			set++
		}
	}
	return set > 0 && set < len(values)
}

type PostmarkConfig struct {
	AccountToken   string        `koanf:"account_token" mapstructure:"account_token"`
	ServerToken    string        `koanf:"server_token" mapstructure:"server_token"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig     `koanf:"webhook" mapstructure:"webhook"`
	Correlation CorrelationConfig `koanf:"correlation" mapstructure:"correlation"`
	CRM         CRMConfig         `koanf:"crm" mapstructure:"crm"`
	Postmark    PostmarkConfig    `koanf:"postmark" mapstructure:"postmark"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "mailhooks",
		Webhook: WebhookConfig{
			SignatureHeader: DefaultSignatureHeader,
		},
		Correlation: CorrelationConfig{
			Channel:    ChannelPostmark,
			WindowDays: DefaultCorrelationWindowDays,
		},
		CRM: CRMConfig{
			ConnectTimeout: DefaultConnectTimeout,
			RequestTimeout: DefaultRequestTimeout,
		},
		Postmark: PostmarkConfig{
			RequestTimeout: DefaultRequestTimeout,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Correlation.Channel) == "" {
		return fmt.Errorf("core: correlation.channel is required")
	}
	if c.Correlation.WindowDays < 0 {
		return fmt.Errorf("core: correlation.window_days must not be negative")
	}
	if strings.TrimSpace(c.Webhook.SignatureHeader) == "" {
		return fmt.Errorf("core: webhook.signature_header is required")
	}
	if c.CRM.partiallyConfigured() {
		return fmt.Errorf("core: crm configuration is incomplete; set all of base_url, client_id, client_secret, username, password or none")
	}
	return nil
}
