package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/normalizer"
	"github.com/mizuikk/codex-openai-wrapper/internal/translator"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

// ChatCompletions handles POST /v1/chat/completions.
func (d *Deps) ChatCompletions(c *gin.Context) {
	b := d.snapshot()

	raw, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(raw) {
		errorJSON(c, http.StatusBadRequest, "invalid JSON body", "invalid_request_error")
		return
	}
	body := gjson.ParseBytes(raw)

	mode, ok := resolveMode(c, b.cfg, body)
	if !ok {
		return
	}

	res := b.mapper.Resolve(body.Get("model").String())
	items := normalizer.InputItems(body.Get("messages"))
	param := reasoningParam(b.cfg, body, res.Effort)

	req := &upstream.Request{
		Model:             res.Model,
		Instructions:      b.cfg.Instructions,
		Input:             items,
		Tools:             normalizer.Tools(body.Get("tools"), b.cfg.Upstream.ToolSchema),
		ToolChoice:        normalizer.ToolChoice(body.Get("tool_choice")),
		ParallelToolCalls: body.Get("parallel_tool_calls").Bool(),
		Store:             false,
		Stream:            true,
		Include:           b.cfg.Upstream.Include,
		Reasoning:         param,
	}
	sessionID := d.sessions.EnsureSessionID(req.Instructions, items, clientSessionID(c, body))
	req.SessionID = sessionID
	req.PromptCacheKey = sessionID

	if b.cfg.Verbose {
		log.Debugf("chat request model=%s session=%s stream=%v items=%d", res.Model, sessionID, body.Get("stream").Bool(), len(items))
	}

	resp, errResp := b.client.Do(c.Request.Context(), req, c.Request.Header)
	if errResp != nil {
		d.record(res.Model, c.FullPath(), res.Effort, false, true, nil)
		upstreamError(c, errResp)
		return
	}
	defer resp.Body.Close()

	created := time.Now().Unix()
	st := translator.NewState(mode)

	if body.Get("stream").Bool() {
		sseHeaders(c)
		renderer := &translator.ChatRenderer{Model: res.Model, Created: created}
		if err := translator.Stream(c.Request.Context(), resp.Body, c.Writer, st, renderer); err != nil {
			log.WithError(err).Warnf("chat stream aborted")
		}
		d.record(res.Model, c.FullPath(), res.Effort, true, st.ErrMessage() != "", st.Usage())
		return
	}

	if err := translator.Aggregate(c.Request.Context(), resp.Body, st); err != nil {
		d.record(res.Model, c.FullPath(), res.Effort, false, true, nil)
		errorJSON(c, http.StatusBadGateway, err.Error(), "upstream_error")
		return
	}
	if msg := st.ErrMessage(); msg != "" && st.VisibleText() == "" && len(st.ToolCalls()) == 0 {
		d.record(res.Model, c.FullPath(), res.Effort, false, true, st.Usage())
		errorJSON(c, http.StatusBadGateway, msg, "upstream_error")
		return
	}
	d.record(res.Model, c.FullPath(), res.Effort, false, false, st.Usage())
	c.JSON(http.StatusOK, st.BuildChatCompletion(res.Model, created))
}

// Completions handles POST /v1/completions, the legacy text surface.
func (d *Deps) Completions(c *gin.Context) {
	b := d.snapshot()

	raw, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(raw) {
		errorJSON(c, http.StatusBadRequest, "invalid JSON body", "invalid_request_error")
		return
	}
	body := gjson.ParseBytes(raw)

	mode, ok := resolveMode(c, b.cfg, body)
	if !ok {
		return
	}

	prompt := body.Get("prompt").String()
	res := b.mapper.Resolve(body.Get("model").String())
	items := normalizer.PromptItems(prompt)

	req := &upstream.Request{
		Model:        res.Model,
		Instructions: b.cfg.Instructions,
		Input:        items,
		Store:        false,
		Stream:       true,
		Include:      b.cfg.Upstream.Include,
		Reasoning:    reasoningParam(b.cfg, body, res.Effort),
	}
	sessionID := d.sessions.EnsureSessionID(req.Instructions, items, clientSessionID(c, body))
	req.SessionID = sessionID
	req.PromptCacheKey = sessionID

	resp, errResp := b.client.Do(c.Request.Context(), req, c.Request.Header)
	if errResp != nil {
		d.record(res.Model, c.FullPath(), res.Effort, false, true, nil)
		upstreamError(c, errResp)
		return
	}
	defer resp.Body.Close()

	created := time.Now().Unix()
	st := translator.NewState(mode)

	if body.Get("stream").Bool() {
		sseHeaders(c)
		renderer := &translator.TextRenderer{Model: res.Model, Created: created}
		if err := translator.Stream(c.Request.Context(), resp.Body, c.Writer, st, renderer); err != nil {
			log.WithError(err).Warnf("completion stream aborted")
		}
		d.record(res.Model, c.FullPath(), res.Effort, true, st.ErrMessage() != "", st.Usage())
		return
	}

	if err := translator.Aggregate(c.Request.Context(), resp.Body, st); err != nil {
		d.record(res.Model, c.FullPath(), res.Effort, false, true, nil)
		errorJSON(c, http.StatusBadGateway, err.Error(), "upstream_error")
		return
	}
	d.record(res.Model, c.FullPath(), res.Effort, false, false, st.Usage())
	c.JSON(http.StatusOK, st.BuildTextCompletion(res.Model, created))
}

// Responses handles POST /v1/responses by forwarding the body upstream
// unchanged and relaying the reply verbatim. No translation is applied, so
// native Responses API clients can reach the backend through the same
// listener and credentials.
func (d *Deps) Responses(c *gin.Context) {
	b := d.snapshot()

	raw, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(raw) {
		errorJSON(c, http.StatusBadRequest, "invalid JSON body", "invalid_request_error")
		return
	}
	sessionID := gjson.GetBytes(raw, "prompt_cache_key").String()

	resp, errResp := b.client.DoRaw(c.Request.Context(), raw, sessionID, c.Request.Header)
	if errResp != nil {
		upstreamError(c, errResp)
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Writer.WriteHeader(resp.StatusCode)

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return
			}
			c.Writer.Flush()
		}
		if readErr != nil {
			return
		}
	}
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// Models handles GET /v1/models, listing the default model plus every alias.
func (d *Deps) Models(c *gin.Context) {
	b := d.snapshot()

	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(b.cfg.Models.Default)
	for alias := range b.cfg.Models.Aliases {
		add(alias)
	}
	sort.Strings(ids)

	created := time.Now().Unix()
	data := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		data = append(data, modelEntry{ID: id, Object: "model", Created: created, OwnedBy: "codex-openai-wrapper"})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// UsageStats handles GET /usage.
func (d *Deps) UsageStats(c *gin.Context) {
	hours := 24
	if v := c.Query("hours"); v != "" {
		if parsed, ok := gjson.Parse(v).Value().(float64); ok && parsed > 0 {
			hours = int(parsed)
		}
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	global, err := d.store.GlobalStats(c.Request.Context(), since)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error(), "server_error")
		return
	}
	models, err := d.store.PerModelStats(c.Request.Context(), since)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error(), "server_error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"since_hours": hours,
		"totals":      global,
		"models":      models,
	})
}

// Health handles GET /health.
func (d *Deps) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
