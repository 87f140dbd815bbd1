// Package postmark reads server and template inventory from the
// Postmark Account and Server APIs, for wiring send integrations and
// surfacing template variables to campaign builders.
package postmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

const (
	defaultBaseURL        = "https://api.postmarkapp.com"
	defaultRequestTimeout = 30 * time.Second
	defaultPageSize       = 100
	maxResponseBodyBytes  = 4 << 20

	accountTokenHeader = "X-Postmark-Account-Token"
	serverTokenHeader  = "X-Postmark-Server-Token"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Server is one Postmark server entry from the Account API. ApiTokens
// normally carries exactly one token.
type Server struct {
	ID        int64    `json:"ID"`
	Name      string   `json:"Name"`
	ApiTokens []string `json:"ApiTokens"`
}

// Template is one template entry. List responses carry only the summary
// fields; GetTemplate fills in the bodies.
type Template struct {
	TemplateID int64  `json:"TemplateId"`
	Name       string `json:"Name"`
	Alias      string `json:"Alias"`
	Subject    string `json:"Subject"`
	HtmlBody   string `json:"HtmlBody"`
	TextBody   string `json:"TextBody"`
}

// Client queries the Postmark management APIs. The account token scopes
// server listing; the server token scopes template access.
type Client struct {
	config     core.PostmarkConfig
	baseURL    string
	httpClient HTTPDoer
}

func NewClient(cfg core.PostmarkConfig, httpClient HTTPDoer) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Client{
		config:     cfg,
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
	}
}

// WithBaseURL points the client at a different API host, for tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if c != nil && strings.TrimSpace(baseURL) != "" {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	return c
}

// ListServers pages through the Account API server list.
func (c *Client) ListServers(ctx context.Context, offset int, count int) ([]Server, error) {
	accountToken := strings.TrimSpace(c.config.AccountToken)
	if accountToken == "" {
		return nil, fmt.Errorf("postmark: account token is required")
	}
	if count <= 0 {
		count = defaultPageSize
	}
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("count", strconv.Itoa(count))

	var decoded struct {
		Servers []Server `json:"Servers"`
	}
	if err := c.getJSON(ctx, "/servers?"+query.Encode(), accountTokenHeader, accountToken, &decoded); err != nil {
		return nil, err
	}
	return decoded.Servers, nil
}

// ListTemplates pages through the Server API template list.
func (c *Client) ListTemplates(ctx context.Context, offset int, count int) ([]Template, error) {
	serverToken := strings.TrimSpace(c.config.ServerToken)
	if serverToken == "" {
		return nil, fmt.Errorf("postmark: server token is required")
	}
	if count <= 0 {
		count = defaultPageSize
	}
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("count", strconv.Itoa(count))

	var decoded struct {
		Templates []Template `json:"Templates"`
	}
	if err := c.getJSON(ctx, "/templates?"+query.Encode(), serverTokenHeader, serverToken, &decoded); err != nil {
		return nil, err
	}
	return decoded.Templates, nil
}

// GetTemplate fetches one template by alias, including its subject and
// body content.
func (c *Client) GetTemplate(ctx context.Context, templateAlias string) (Template, error) {
	serverToken := strings.TrimSpace(c.config.ServerToken)
	if serverToken == "" {
		return Template{}, fmt.Errorf("postmark: server token is required")
	}
	templateAlias = strings.TrimSpace(templateAlias)
	if templateAlias == "" {
		return Template{}, fmt.Errorf("postmark: template alias is required")
	}

	var decoded Template
	if err := c.getJSON(ctx, "/templates/"+url.PathEscape(templateAlias), serverTokenHeader, serverToken, &decoded); err != nil {
		return Template{}, err
	}
	return decoded, nil
}

func (c *Client) getJSON(ctx context.Context, path string, tokenHeader string, token string, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("postmark: client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("postmark: build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, token)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("postmark: GET %s: %w", path, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("postmark: read response for %s: %w", path, err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("postmark: GET %s failed with HTTP %d%s", path, response.StatusCode, apiErrorSuffix(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("postmark: decode response for %s: %w", path, err)
	}
	return nil
}

// apiErrorSuffix surfaces Postmark's Message field when the error body
// is parseable.
func apiErrorSuffix(raw []byte) string {
	var decoded struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ""
	}
	if strings.TrimSpace(decoded.Message) == "" {
		return ""
	}
	return ": " + decoded.Message
}
