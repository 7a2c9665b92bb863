// Package handlers implements the OpenAI- and Ollama-compatible endpoints.
package handlers

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/mizuikk/codex-openai-wrapper/internal/auth"
	"github.com/mizuikk/codex-openai-wrapper/internal/config"
	"github.com/mizuikk/codex-openai-wrapper/internal/modelmap"
	"github.com/mizuikk/codex-openai-wrapper/internal/reasoning"
	"github.com/mizuikk/codex-openai-wrapper/internal/session"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
	"github.com/mizuikk/codex-openai-wrapper/internal/usage"
	"github.com/mizuikk/codex-openai-wrapper/internal/util"
)

// bundle holds everything derived from one config snapshot, swapped
// atomically on hot reload.
type bundle struct {
	cfg    *config.Config
	client *upstream.Client
	mapper *modelmap.Mapper
}

// Deps is the shared dependency set behind all handlers.
type Deps struct {
	current  atomic.Pointer[bundle]
	sessions *session.Cache
	store    *usage.Store
}

// New builds the handler dependencies from the initial config.
func New(cfg *config.Config, store *usage.Store) *Deps {
	d := &Deps{
		sessions: session.NewCache(0),
		store:    store,
	}
	d.Reload(cfg)
	return d
}

// Reload swaps in a new config snapshot. In-flight requests keep the bundle
// they started with.
func (d *Deps) Reload(cfg *config.Config) {
	client := upstream.NewClient(upstream.Config{
		URL:             cfg.Upstream.URL,
		BaseURL:         cfg.Upstream.BaseURL,
		Path:            cfg.Upstream.Path,
		AuthMode:        cfg.Upstream.AuthMode,
		APIKeyEnv:       cfg.Upstream.APIKeyEnv,
		ForwardPolicy:   cfg.Upstream.ForwardPolicy,
		ForwardHeaders:  cfg.Upstream.ForwardHeaders,
		OverrideHeaders: cfg.Upstream.OverrideHeaders,
		Timeout:         cfg.Upstream.Timeout(),
	}, buildProvider(cfg))

	d.current.Store(&bundle{
		cfg:    cfg,
		client: client,
		mapper: modelmap.New(cfg.Models.Aliases, cfg.Models.Default, cfg.Models.Override),
	})
}

// Config returns the active config snapshot.
func (d *Deps) Config() *config.Config {
	return d.current.Load().cfg
}

func (d *Deps) snapshot() *bundle {
	return d.current.Load()
}

func buildProvider(cfg *config.Config) upstream.CredentialProvider {
	if cfg.Upstream.AuthMode == upstream.AuthAPIKeyEnv {
		// The client reads the key from the environment per attempt.
		return &auth.StaticProvider{}
	}
	return auth.NewFileProvider(util.ExpandHome(cfg.Upstream.AuthFile))
}

// errorJSON writes the standard error envelope.
func errorJSON(c *gin.Context, status int, message, errType string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
		},
	})
}

func upstreamError(c *gin.Context, errResp *upstream.ErrorResponse) {
	status := errResp.StatusCode
	if status == 0 {
		status = http.StatusBadGateway
	}
	errorJSON(c, status, errResp.Message, errResp.Type)
}

// resolveMode applies the per-request compat override on top of the config
// default. Retired names are a hard 400, not a silent fallback.
func resolveMode(c *gin.Context, cfg *config.Config, body gjson.Result) (reasoning.Mode, bool) {
	raw := cfg.Reasoning.Compat
	if v := body.Get("reasoning_compat"); v.Type == gjson.String {
		raw = v.String()
	}
	if err := reasoning.CheckRejected(raw); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error(), "invalid_request_error")
		return "", false
	}
	return reasoning.Normalize(raw), true
}

// reasoningParam builds the upstream reasoning block. Precedence for effort:
// explicit request field, then model-name suffix, then config.
func reasoningParam(cfg *config.Config, body gjson.Result, suffixEffort string) *upstream.ReasoningParam {
	effort := cfg.Reasoning.Effort
	if suffixEffort != "" {
		effort = suffixEffort
	}
	if v := body.Get("reasoning_effort"); v.Type == gjson.String && v.String() != "" {
		effort = v.String()
	}
	summary := cfg.Reasoning.Summary
	if v := body.Get("reasoning_summary"); v.Type == gjson.String && v.String() != "" {
		summary = v.String()
	}
	if effort == "" && summary == "" {
		return nil
	}
	return &upstream.ReasoningParam{Effort: effort, Summary: summary}
}

// record persists one request's accounting when the store is enabled.
func (d *Deps) record(model, endpoint, effort string, streamed, failed bool, u *upstream.Usage) {
	rec := usage.Record{
		Model:           model,
		Endpoint:        endpoint,
		ReasoningEffort: effort,
		Streamed:        streamed,
		Failed:          failed,
		RequestedAt:     time.Now().UTC(),
	}
	if u != nil {
		rec.PromptTokens = u.PromptTokens
		rec.CompletionTokens = u.CompletionTokens
		rec.TotalTokens = u.TotalTokens
		if u.PromptTokensDetails != nil {
			rec.CachedTokens = u.PromptTokensDetails.CachedTokens
		}
	}
	d.store.Add(rec)
}

// clientSessionID pulls a caller-supplied session id from body or header.
func clientSessionID(c *gin.Context, body gjson.Result) string {
	if v := body.Get("session_id"); v.Type == gjson.String {
		return v.String()
	}
	return c.GetHeader("Session_id")
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
}
