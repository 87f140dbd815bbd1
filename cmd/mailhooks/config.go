package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

// envRawConfigLoader projects MAILHOOKS_* environment variables into the
// nested raw map the config provider consumes. This is the only place in
// the module that reads the process environment for business config.
type envRawConfigLoader struct{}

func (envRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}

	if value, ok := envString("MAILHOOKS_SERVICE_NAME"); ok {
		raw["service_name"] = value
	}

	webhook := map[string]any{}
	if value, ok := envString("MAILHOOKS_WEBHOOK_SECRET"); ok {
		webhook["secret"] = value
	}
	if value, ok := envString("MAILHOOKS_WEBHOOK_SIGNATURE_HEADER"); ok {
		webhook["signature_header"] = value
	}
	if len(webhook) > 0 {
		raw["webhook"] = webhook
	}

	correlation := map[string]any{}
	if value, ok := envString("MAILHOOKS_CORRELATION_CHANNEL"); ok {
		correlation["channel"] = value
	}
	if value, ok := envInt("MAILHOOKS_CORRELATION_WINDOW_DAYS"); ok {
		correlation["window_days"] = value
	}
	if len(correlation) > 0 {
		raw["correlation"] = correlation
	}

	crm := map[string]any{}
	if value, ok := envString("MAILHOOKS_CRM_BASE_URL"); ok {
		crm["base_url"] = value
	}
	if value, ok := envString("MAILHOOKS_CRM_CLIENT_ID"); ok {
		crm["client_id"] = value
	}
	if value, ok := envString("MAILHOOKS_CRM_CLIENT_SECRET"); ok {
		crm["client_secret"] = value
	}
	if value, ok := envString("MAILHOOKS_CRM_USERNAME"); ok {
		crm["username"] = value
	}
	if value, ok := envString("MAILHOOKS_CRM_PASSWORD"); ok {
		crm["password"] = value
	}
	if value, ok := envDuration("MAILHOOKS_CRM_REQUEST_TIMEOUT"); ok {
		crm["request_timeout"] = value
	}
	if len(crm) > 0 {
		raw["crm"] = crm
	}

	postmark := map[string]any{}
	if value, ok := envString("MAILHOOKS_POSTMARK_ACCOUNT_TOKEN"); ok {
		postmark["account_token"] = value
	}
	if value, ok := envString("MAILHOOKS_POSTMARK_SERVER_TOKEN"); ok {
		postmark["server_token"] = value
	}
	if len(postmark) > 0 {
		raw["postmark"] = postmark
	}

	return raw, nil
}

func loadConfig(ctx context.Context) (core.Config, error) {
	defaults := core.DefaultConfig()
	provider := core.NewCfgxConfigProvider(envRawConfigLoader{})
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}
	return core.GoOptionsResolver{}.Resolve(defaults, loaded, core.Config{})
}

func envString(name string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(name))
	return value, value != ""
}

func envInt(name string) (int, bool) {
	value, ok := envString(name)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func envDuration(name string) (time.Duration, bool) {
	value, ok := envString(name)
	if !ok {
		return 0, false
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func envBool(name string) bool {
	value, ok := envString(name)
	if !ok {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}
