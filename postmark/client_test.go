package postmark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

func newPostmarkServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Postmark-Account-Token") != "account-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"Message": "invalid account token"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"TotalCount": 2,
			"Servers": []map[string]any{
				{"ID": 101, "Name": "Production", "ApiTokens": []string{"srv-token-1"}},
				{"ID": 102, "Name": "Staging", "ApiTokens": []string{"srv-token-2"}},
			},
		})
	})
	mux.HandleFunc("/templates", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Postmark-Server-Token") != "server-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"Message": "invalid server token"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"TotalCount": 1,
			"Templates": []map[string]any{
				{"TemplateId": 9, "Name": "Welcome", "Alias": "welcome-v2"},
			},
		})
	})
	mux.HandleFunc("/templates/", func(w http.ResponseWriter, r *http.Request) {
		alias := strings.TrimPrefix(r.URL.Path, "/templates/")
		if alias != "welcome-v2" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"Message": "template not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"TemplateId": 9,
			"Name":       "Welcome",
			"Alias":      "welcome-v2",
			"Subject":    "Hello {{first_name}}",
			"HtmlBody":   "<p>{{#if company}}{{company}}{{else}}friend{{/if}}</p>",
			"TextBody":   "Visit {{product_url}} today",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	return NewClient(core.PostmarkConfig{
		AccountToken:   "account-token",
		ServerToken:    "server-token",
		RequestTimeout: 5 * time.Second,
	}, server.Client()).WithBaseURL(server.URL)
}

func TestClient_ListServers(t *testing.T) {
	client := newTestClient(t, newPostmarkServer(t))

	servers, err := client.ListServers(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("list servers: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if servers[0].Name != "Production" || servers[0].ApiTokens[0] != "srv-token-1" {
		t.Fatalf("unexpected first server %+v", servers[0])
	}
}

func TestClient_ListServers_BadToken(t *testing.T) {
	server := newPostmarkServer(t)
	client := NewClient(core.PostmarkConfig{
		AccountToken: "wrong",
		ServerToken:  "server-token",
	}, server.Client()).WithBaseURL(server.URL)

	_, err := client.ListServers(context.Background(), 0, 100)
	if err == nil {
		t.Fatal("expected error for rejected token")
	}
	if !strings.Contains(err.Error(), "invalid account token") {
		t.Fatalf("expected API message in error, got %v", err)
	}
}

func TestClient_ListTemplates(t *testing.T) {
	client := newTestClient(t, newPostmarkServer(t))

	templates, err := client.ListTemplates(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	if len(templates) != 1 || templates[0].Alias != "welcome-v2" {
		t.Fatalf("unexpected templates %+v", templates)
	}
}

func TestClient_GetTemplate(t *testing.T) {
	client := newTestClient(t, newPostmarkServer(t))

	template, err := client.GetTemplate(context.Background(), "welcome-v2")
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if template.Subject != "Hello {{first_name}}" {
		t.Fatalf("unexpected subject %q", template.Subject)
	}

	if _, err := client.GetTemplate(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown alias")
	}
	if _, err := client.GetTemplate(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank alias")
	}
}

func TestClient_MissingTokens(t *testing.T) {
	client := NewClient(core.PostmarkConfig{}, nil)
	if _, err := client.ListServers(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error without account token")
	}
	if _, err := client.ListTemplates(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error without server token")
	}
}
