package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// RawConfigLoader surfaces configuration as a nested map, typically built
// from the process environment at the binary edge. Business logic only
// ever sees the resolved Config struct.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticRawConfigLoader wraps literal values, mostly for tests and simple
// embedding scenarios.
func StaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: config build failed: %w", err)
	}
	return cfg, nil
}

// GoOptionsResolver merges three layers with go-options precedence
// defaults < loaded < runtime, then re-validates the result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.Webhook != (WebhookConfig{}) {
		layer["webhook"] = map[string]any{
			"secret":           cfg.Webhook.Secret,
			"signature_header": cfg.Webhook.SignatureHeader,
		}
	}
	if includeZero || cfg.Correlation != (CorrelationConfig{}) {
		layer["correlation"] = map[string]any{
			"channel":     cfg.Correlation.Channel,
			"window_days": cfg.Correlation.WindowDays,
		}
	}
	if includeZero || cfg.CRM != (CRMConfig{}) {
		layer["crm"] = map[string]any{
			"base_url":        cfg.CRM.BaseURL,
			"client_id":       cfg.CRM.ClientID,
			"client_secret":   cfg.CRM.ClientSecret,
			"username":        cfg.CRM.Username,
			"password":        cfg.CRM.Password,
			"connect_timeout": cfg.CRM.ConnectTimeout,
			"request_timeout": cfg.CRM.RequestTimeout,
		}
	}
	if includeZero || cfg.Postmark != (PostmarkConfig{}) {
		layer["postmark"] = map[string]any{
			"account_token":   cfg.Postmark.AccountToken,
			"server_token":    cfg.Postmark.ServerToken,
			"request_timeout": cfg.Postmark.RequestTimeout,
		}
	}
	return layer
}
