package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mizuikk/codex-openai-wrapper/internal/json"
	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/transport"
)

// Auth modes for the outbound request.
const (
	AuthChatGPTToken   = "chatgpt_token"
	AuthAPIKeyEnv      = "apikey_env"
	AuthAPIKeyAuthJSON = "apikey_auth_json"
)

// Header-forwarding policies.
const (
	ForwardOff           = "off"
	ForwardSafe          = "safe"
	ForwardList          = "list"
	ForwardOverride      = "override"
	ForwardOverrideCodex = "override-codex"
)

const (
	defaultBaseURL = "https://chatgpt.com/backend-api/codex"
	defaultPath    = "/responses"
)

// safeForwardHeaders is the allowlist used by the "safe" policy. Hop-by-hop
// and auth-bearing headers never pass through.
var safeForwardHeaders = []string{
	"Accept-Language",
	"User-Agent",
	"X-Request-Id",
	"X-Client-Version",
}

// Credentials is what a provider resolves for one outbound attempt.
type Credentials struct {
	AccessToken string
	AccountID   string
	APIKey      string
}

// CredentialProvider supplies auth material and performs token refresh. The
// orchestrator treats it as opaque; file handling and OAuth live elsewhere.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
	Refresh(ctx context.Context) (Credentials, error)
}

// Config holds the resolved upstream settings for the client.
type Config struct {
	// URL, when set, is used verbatim and wins over BaseURL+Path.
	URL     string
	BaseURL string
	Path    string

	AuthMode  string
	APIKeyEnv string

	ForwardPolicy   string
	ForwardHeaders  []string
	OverrideHeaders map[string]string

	Timeout time.Duration
}

// Client performs the upstream POST and owns the 401 refresh-and-retry cycle.
type Client struct {
	cfg      Config
	provider CredentialProvider
	http     *http.Client
}

// NewClient builds a Client. The http.Client carries no global timeout so
// long-lived SSE bodies are not cut off; per-request deadlines come from the
// caller's context combined with cfg.Timeout.
func NewClient(cfg Config, provider CredentialProvider) *Client {
	return &Client{
		cfg:      cfg,
		provider: provider,
		http:     &http.Client{Transport: transport.New()},
	}
}

// Endpoint resolves the target URL: explicit URL, then base+path, then the
// built-in default.
func (c *Client) Endpoint() string {
	if u := strings.TrimSpace(c.cfg.URL); u != "" {
		return u
	}
	base := strings.TrimRight(strings.TrimSpace(c.cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	path := strings.TrimSpace(c.cfg.Path)
	if path == "" {
		path = defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Do sends the request and returns the live upstream response or a structured
// error. Exactly one of the results is non-nil. On 401 with token auth it
// refreshes once and retries the identical request once.
func (c *Client) Do(ctx context.Context, req *Request, inbound http.Header) (*http.Response, *ErrorResponse) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ErrorResponse{StatusCode: http.StatusInternalServerError, Message: fmt.Sprintf("encode upstream request: %v", err), Type: "server_error"}
	}
	return c.DoRaw(ctx, body, req.SessionID, inbound)
}

// DoRaw sends a caller-provided JSON body unchanged, with the same auth,
// refresh-and-retry cycle, and header policy as Do. Used by the Responses
// passthrough endpoint.
func (c *Client) DoRaw(ctx context.Context, body []byte, sessionID string, inbound http.Header) (*http.Response, *ErrorResponse) {
	cancel := context.CancelFunc(func() {})
	if c.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}

	creds, err := c.provider.Credentials(ctx)
	if err != nil {
		cancel()
		return nil, &ErrorResponse{StatusCode: http.StatusUnauthorized, Message: err.Error(), Type: "auth_error"}
	}

	resp, errResp := c.attempt(ctx, body, sessionID, inbound, creds)
	if errResp != nil && errResp.StatusCode == http.StatusUnauthorized && c.cfg.AuthMode == AuthChatGPTToken {
		log.Debugf("upstream 401, refreshing token and retrying once")
		refreshed, refreshErr := c.provider.Refresh(ctx)
		if refreshErr != nil {
			log.WithError(refreshErr).Warnf("token refresh failed")
			cancel()
			return nil, errResp
		}
		resp, errResp = c.attempt(ctx, body, sessionID, inbound, refreshed)
	}
	if errResp != nil {
		cancel()
		return nil, errResp
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose ties a context cancel to the response body so per-request
// timeouts do not leak timers once the stream finishes.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	b.cancel()
	return b.ReadCloser.Close()
}

func (c *Client) attempt(ctx context.Context, body []byte, sessionID string, inbound http.Header, creds Credentials) (*http.Response, *ErrorResponse) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, &ErrorResponse{StatusCode: http.StatusInternalServerError, Message: err.Error(), Type: "server_error"}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if sessionID != "" {
		httpReq.Header.Set("Session_id", sessionID)
	}

	if errResp := c.applyAuth(httpReq, creds); errResp != nil {
		return nil, errResp
	}
	c.applyForwardPolicy(httpReq, inbound, sessionID)

	if log.IsDebugEnabled() {
		log.Debugf("upstream POST %s (%d bytes)", c.Endpoint(), len(body))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &ErrorResponse{StatusCode: 499, Message: "request canceled", Type: "canceled"}
		}
		return nil, &ErrorResponse{StatusCode: http.StatusBadGateway, Message: err.Error(), Type: "upstream_error"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readErrorBody(resp)
	}
	return resp, nil
}

func (c *Client) applyAuth(httpReq *http.Request, creds Credentials) *ErrorResponse {
	switch c.cfg.AuthMode {
	case AuthAPIKeyEnv:
		key := strings.TrimSpace(os.Getenv(c.cfg.APIKeyEnv))
		if key == "" {
			return &ErrorResponse{StatusCode: http.StatusUnauthorized, Message: fmt.Sprintf("environment variable %s is empty", c.cfg.APIKeyEnv), Type: "auth_error"}
		}
		httpReq.Header.Set("Authorization", "Bearer "+key)
	case AuthAPIKeyAuthJSON:
		if creds.APIKey == "" {
			return &ErrorResponse{StatusCode: http.StatusUnauthorized, Message: "no upstream API key available", Type: "auth_error"}
		}
		httpReq.Header.Set("Authorization", "Bearer "+creds.APIKey)
	default: // chatgpt_token
		if creds.AccessToken == "" {
			return &ErrorResponse{StatusCode: http.StatusUnauthorized, Message: "no access token available", Type: "auth_error"}
		}
		httpReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)
		if creds.AccountID != "" {
			httpReq.Header.Set("Chatgpt-Account-Id", creds.AccountID)
		}
	}
	return nil
}

// applyForwardPolicy copies or injects client headers per the configured
// policy. Authorization and Content-Type are never forwarded from inbound.
func (c *Client) applyForwardPolicy(httpReq *http.Request, inbound http.Header, sessionID string) {
	switch c.cfg.ForwardPolicy {
	case ForwardSafe:
		for _, name := range safeForwardHeaders {
			if v := inbound.Get(name); v != "" {
				httpReq.Header.Set(name, v)
			}
		}
	case ForwardList:
		for _, name := range c.cfg.ForwardHeaders {
			canonical := http.CanonicalHeaderKey(strings.TrimSpace(name))
			if canonical == "" || canonical == "Authorization" || canonical == "Content-Type" {
				continue
			}
			if v := inbound.Get(canonical); v != "" {
				httpReq.Header.Set(canonical, v)
			}
		}
	case ForwardOverride:
		for name, value := range c.cfg.OverrideHeaders {
			httpReq.Header.Set(name, value)
		}
	case ForwardOverrideCodex:
		httpReq.Header.Set("Originator", "codex_cli_rs")
		httpReq.Header.Set("User-Agent", "codex_cli_rs")
		httpReq.Header.Set("Openai-Beta", "responses=experimental")
		if sessionID != "" {
			httpReq.Header.Set("Session_id", sessionID)
		}
	}
}

// readErrorBody extracts the upstream error message, falling back to the
// HTTP status text when the body is not JSON.
func readErrorBody(resp *http.Response) *ErrorResponse {
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	raw := buf.String()

	msg := http.StatusText(resp.StatusCode)
	if gjson.Valid(raw) {
		if m := gjson.Get(raw, "error.message"); m.Type == gjson.String && m.String() != "" {
			msg = m.String()
		} else if m := gjson.Get(raw, "message"); m.Type == gjson.String && m.String() != "" {
			msg = m.String()
		}
	}
	return &ErrorResponse{StatusCode: resp.StatusCode, Message: msg, Type: "upstream_error"}
}
