package main

import (
	"context"
	"testing"
)

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("MAILHOOKS_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("MAILHOOKS_CORRELATION_WINDOW_DAYS", "7")
	t.Setenv("MAILHOOKS_CRM_BASE_URL", "https://crm.example.com")
	t.Setenv("MAILHOOKS_POSTMARK_SERVER_TOKEN", "srv-token")

	cfg, err := loadConfig(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Webhook.Secret != "hook-secret" {
		t.Fatalf("unexpected webhook secret %q", cfg.Webhook.Secret)
	}
	if cfg.Webhook.SignatureHeader != "X-Postmark-Signature" {
		t.Fatalf("expected default signature header, got %q", cfg.Webhook.SignatureHeader)
	}
	if cfg.Correlation.WindowDays != 7 {
		t.Fatalf("unexpected window days %d", cfg.Correlation.WindowDays)
	}
	if cfg.Correlation.Channel != "postmark" {
		t.Fatalf("expected default channel, got %q", cfg.Correlation.Channel)
	}
	if cfg.CRM.BaseURL != "https://crm.example.com" {
		t.Fatalf("unexpected crm base url %q", cfg.CRM.BaseURL)
	}
	if cfg.CRM.Enabled() {
		t.Fatal("partial crm credentials must stay disabled")
	}
	if cfg.Postmark.ServerToken != "srv-token" {
		t.Fatalf("unexpected server token %q", cfg.Postmark.ServerToken)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "mailhooks" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
	if cfg.Correlation.WindowDays != 14 {
		t.Fatalf("expected 14-day default window, got %d", cfg.Correlation.WindowDays)
	}
}
