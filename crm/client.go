package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
	maxResponseBodyBytes  = 1 << 20

	tokenExpirySkew = 30 * time.Second
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// EmailLookup resolves the CRM email record correlated to a provider
// message id. core.ErrLookupUnresolved when no record matches.
type EmailLookup interface {
	LookupEmailID(ctx context.Context, providerMessageID string) (string, error)
}

type EmailUpdater interface {
	UpdateEmail(ctx context.Context, emailID string, attributes map[string]any) error
}

// Client talks to the SuiteCRM V8 API. Every operation authenticates
// with the password grant first; the token is cached until shortly
// before its reported expiry.
type Client struct {
	config     core.CRMConfig
	httpClient HTTPDoer
	now        func() time.Time

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
}

func NewClient(cfg core.CRMConfig, httpClient HTTPDoer) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		}
	}
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	return c.config.Enabled()
}

// CreateEmail creates a new Emails module record and returns the id the
// CRM assigned to it.
func (c *Client) CreateEmail(ctx context.Context, attributes map[string]any) (string, error) {
	payload := map[string]any{
		"data": map[string]any{
			"type":       "Emails",
			"attributes": attributes,
		},
	}
	response, err := c.doJSON(ctx, http.MethodPost, "/Api/V8/module", payload)
	if err != nil {
		return "", err
	}
	emailID := dataID(response)
	if emailID == "" {
		return "", fmt.Errorf("crm: create email returned no record id")
	}
	return emailID, nil
}

func (c *Client) UpdateEmail(ctx context.Context, emailID string, attributes map[string]any) error {
	emailID = strings.TrimSpace(emailID)
	if emailID == "" {
		return fmt.Errorf("crm: email id is required")
	}
	payload := map[string]any{
		"data": map[string]any{
			"type":       "Emails",
			"id":         emailID,
			"attributes": attributes,
		},
	}
	_, err := c.doJSON(ctx, http.MethodPatch, "/Api/V8/module", payload)
	return err
}

// LookupEmailID finds the Emails record whose message_id attribute
// matches the provider message id.
func (c *Client) LookupEmailID(ctx context.Context, providerMessageID string) (string, error) {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return "", core.ErrLookupUnresolved
	}
	query := url.Values{}
	query.Set("filter[message_id][eq]", providerMessageID)
	query.Set("page[size]", "1")

	response, err := c.doJSON(ctx, http.MethodGet, "/Api/V8/module/Emails?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	records, _ := response["data"].([]any)
	if len(records) == 0 {
		return "", core.ErrLookupUnresolved
	}
	record, _ := records[0].(map[string]any)
	emailID := strings.TrimSpace(readString(record["id"]))
	if emailID == "" {
		return "", core.ErrLookupUnresolved
	}
	return emailID, nil
}

func (c *Client) doJSON(ctx context.Context, method string, path string, payload map[string]any) (map[string]any, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("crm: client is not configured")
	}
	if !c.config.Enabled() {
		return nil, core.ErrNotifierDisabled
	}
	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		encoded, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, fmt.Errorf("crm: encode request payload: %w", marshalErr)
		}
		body = bytes.NewReader(encoded)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("crm: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+token)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	decoded, err := decodeBody(response.Body)
	if err != nil {
		return nil, fmt.Errorf("crm: decode %s response: %w", path, err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("crm: %s %s failed with HTTP %d%s", method, path, response.StatusCode, errorsSuffix(decoded))
	}
	return decoded, nil
}

// authenticate performs the password-grant token request, reusing a
// cached token while it is still valid.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && c.now().Before(c.tokenExpiresAt) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	values := url.Values{}
	values.Set("grant_type", "password")
	values.Set("client_id", c.config.ClientID)
	values.Set("client_secret", c.config.ClientSecret)
	values.Set("username", c.config.Username)
	values.Set("password", c.config.Password)

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.endpoint("/Api/access_token"),
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("crm: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("crm: token request failed: %w", err)
	}
	defer response.Body.Close()

	decoded, err := decodeBody(response.Body)
	if err != nil {
		return "", fmt.Errorf("crm: decode token response: %w", err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("crm: authentication failed with HTTP %d", response.StatusCode)
	}
	token := strings.TrimSpace(readString(decoded["access_token"]))
	if token == "" {
		return "", fmt.Errorf("crm: token response missing access_token")
	}

	expiresAt := c.now().Add(time.Hour)
	if expiresIn, ok := decoded["expires_in"].(float64); ok && expiresIn > 0 {
		expiresAt = c.now().Add(time.Duration(expiresIn) * time.Second)
	}

	c.mu.Lock()
	c.accessToken = token
	c.tokenExpiresAt = expiresAt.Add(-tokenExpirySkew)
	c.mu.Unlock()
	return token, nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.config.RequestTimeout)
	}
	return ctx, func() {}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(strings.TrimSpace(c.config.BaseURL), "/") + path
}

func decodeBody(body io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxResponseBodyBytes))
	if err != nil {
		return nil, err
	}
	decoded := map[string]any{}
	if strings.TrimSpace(string(raw)) == "" {
		return decoded, nil
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func dataID(response map[string]any) string {
	data, _ := response["data"].(map[string]any)
	return strings.TrimSpace(readString(data["id"]))
}

func errorsSuffix(decoded map[string]any) string {
	if decoded == nil {
		return ""
	}
	if errs, ok := decoded["errors"]; ok && errs != nil {
		if encoded, err := json.Marshal(errs); err == nil {
			return ": " + string(encoded)
		}
	}
	return ""
}

func readString(value any) string {
	if text, ok := value.(string); ok {
		return text
	}
	return ""
}

var (
	_ EmailLookup  = (*Client)(nil)
	_ EmailUpdater = (*Client)(nil)
)
