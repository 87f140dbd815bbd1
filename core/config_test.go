package core

import (
	"context"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	broken := cfg
	broken.Correlation.Channel = " "
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected error for blank channel")
	}

	broken = cfg
	broken.Correlation.WindowDays = -1
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected error for negative window")
	}

	broken = cfg
	broken.CRM.BaseURL = "https://crm.example.com"
	err := broken.Validate()
	if err == nil || !strings.Contains(err.Error(), "incomplete") {
		t.Fatalf("expected partial crm config rejection, got %v", err)
	}
}

func TestCRMConfigEnabled(t *testing.T) {
	full := CRMConfig{
		BaseURL:      "https://crm.example.com",
		ClientID:     "id",
		ClientSecret: "secret",
		Username:     "user",
		Password:     "pass",
	}
	if !full.Enabled() {
		t.Fatalf("complete credentials must enable")
	}
	partial := full
	partial.Password = ""
	if partial.Enabled() {
		t.Fatalf("missing credential must disable")
	}
	if (CRMConfig{}).Enabled() {
		t.Fatalf("empty config must disable")
	}
}

func TestCfgxConfigProviderAndResolver(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader(map[string]any{
		"webhook": map[string]any{"secret": "hook-secret"},
		"correlation": map[string]any{
			"window_days": 7,
		},
	}))

	loaded, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Webhook.Secret != "hook-secret" {
		t.Fatalf("unexpected secret %q", loaded.Webhook.Secret)
	}
	if loaded.Webhook.SignatureHeader != DefaultSignatureHeader {
		t.Fatalf("defaults must fill unset fields, got %q", loaded.Webhook.SignatureHeader)
	}
	if loaded.Correlation.WindowDays != 7 {
		t.Fatalf("unexpected window days %d", loaded.Correlation.WindowDays)
	}

	runtime := Config{}
	runtime.Correlation.Channel = "postmark"
	runtime.Correlation.WindowDays = 3
	resolved, err := GoOptionsResolver{}.Resolve(DefaultConfig(), loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Correlation.WindowDays != 3 {
		t.Fatalf("runtime layer must win, got %d", resolved.Correlation.WindowDays)
	}
	if resolved.Webhook.Secret != "hook-secret" {
		t.Fatalf("loaded layer must survive merge, got %q", resolved.Webhook.Secret)
	}
}
