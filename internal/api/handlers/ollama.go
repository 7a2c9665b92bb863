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

// Version reported by /api/version. Ollama clients refuse servers that do not
// answer this endpoint.
const ollamaVersion = "0.6.4"

// ollamaStream reads the stream flag with Ollama's default of true.
func ollamaStream(body gjson.Result) bool {
	if v := body.Get("stream"); v.Exists() {
		return v.Bool()
	}
	return true
}

// OllamaChat handles POST /api/chat with NDJSON streaming.
func (d *Deps) OllamaChat(c *gin.Context) {
	b := d.snapshot()

	raw, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(raw) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	body := gjson.ParseBytes(raw)

	mode, ok := resolveMode(c, b.cfg, body)
	if !ok {
		return
	}

	res := b.mapper.Resolve(body.Get("model").String())
	items := normalizer.InputItems(body.Get("messages"))

	req := &upstream.Request{
		Model:        res.Model,
		Instructions: b.cfg.Instructions,
		Input:        items,
		Tools:        normalizer.Tools(body.Get("tools"), b.cfg.Upstream.ToolSchema),
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
		c.AbortWithStatusJSON(errResp.StatusCode, gin.H{"error": errResp.Message})
		return
	}
	defer resp.Body.Close()

	st := translator.NewState(mode)

	if ollamaStream(body) {
		c.Header("Content-Type", "application/x-ndjson")
		c.Writer.WriteHeader(http.StatusOK)
		renderer := translator.NewOllamaChatRenderer(res.Model)
		if err := translator.Stream(c.Request.Context(), resp.Body, c.Writer, st, renderer); err != nil {
			log.WithError(err).Warnf("ollama chat stream aborted")
		}
		d.record(res.Model, c.FullPath(), res.Effort, true, st.ErrMessage() != "", st.Usage())
		return
	}

	if err := translator.Aggregate(c.Request.Context(), resp.Body, st); err != nil {
		d.record(res.Model, c.FullPath(), res.Effort, false, true, nil)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	d.record(res.Model, c.FullPath(), res.Effort, false, false, st.Usage())

	msg := st.FinalMessage()
	out := gin.H{
		"role":    "assistant",
		"content": msg.Content,
	}
	if msg.ReasoningContent != "" {
		out["thinking"] = msg.ReasoningContent
	} else if msg.Reasoning != nil && len(msg.Reasoning.Content) > 0 {
		out["thinking"] = msg.Reasoning.Content[0].Text
	}
	if len(msg.ToolCalls) > 0 {
		calls := make([]gin.H, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			calls = append(calls, gin.H{
				"function": gin.H{
					"name":      call.Function.Name,
					"arguments": gjson.Parse(call.Function.Arguments).Value(),
				},
			})
		}
		out["tool_calls"] = calls
	}

	final := gin.H{
		"model":       res.Model,
		"created_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"message":     out,
		"done":        true,
		"done_reason": doneReasonFor(st),
	}
	if u := st.Usage(); u != nil {
		final["prompt_eval_count"] = u.PromptTokens
		final["eval_count"] = u.CompletionTokens
	}
	c.JSON(http.StatusOK, final)
}

// OllamaGenerate handles POST /api/generate.
func (d *Deps) OllamaGenerate(c *gin.Context) {
	b := d.snapshot()

	raw, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(raw) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	body := gjson.ParseBytes(raw)

	mode, ok := resolveMode(c, b.cfg, body)
	if !ok {
		return
	}

	res := b.mapper.Resolve(body.Get("model").String())
	items := normalizer.PromptItems(body.Get("prompt").String())

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
		c.AbortWithStatusJSON(errResp.StatusCode, gin.H{"error": errResp.Message})
		return
	}
	defer resp.Body.Close()

	st := translator.NewState(mode)

	if ollamaStream(body) {
		c.Header("Content-Type", "application/x-ndjson")
		c.Writer.WriteHeader(http.StatusOK)
		renderer := translator.NewOllamaGenerateRenderer(res.Model)
		if err := translator.Stream(c.Request.Context(), resp.Body, c.Writer, st, renderer); err != nil {
			log.WithError(err).Warnf("ollama generate stream aborted")
		}
		d.record(res.Model, c.FullPath(), res.Effort, true, st.ErrMessage() != "", st.Usage())
		return
	}

	if err := translator.Aggregate(c.Request.Context(), resp.Body, st); err != nil {
		d.record(res.Model, c.FullPath(), res.Effort, false, true, nil)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	d.record(res.Model, c.FullPath(), res.Effort, false, false, st.Usage())

	text := st.BuildTextCompletion(res.Model, time.Now().Unix()).Choices[0].Text
	final := gin.H{
		"model":       res.Model,
		"created_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"response":    text,
		"done":        true,
		"done_reason": doneReasonFor(st),
	}
	if u := st.Usage(); u != nil {
		final["prompt_eval_count"] = u.PromptTokens
		final["eval_count"] = u.CompletionTokens
	}
	c.JSON(http.StatusOK, final)
}

func doneReasonFor(st *translator.State) string {
	if len(st.ToolCalls()) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// OllamaTags handles GET /api/tags.
func (d *Deps) OllamaTags(c *gin.Context) {
	b := d.snapshot()

	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	add(b.cfg.Models.Default)
	for alias := range b.cfg.Models.Aliases {
		add(alias)
	}
	sort.Strings(names)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	models := make([]gin.H, 0, len(names))
	for _, name := range names {
		models = append(models, gin.H{
			"name":        name,
			"model":       name,
			"modified_at": now,
			"size":        0,
			"digest":      "",
			"details": gin.H{
				"family": "gpt",
				"format": "api",
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// OllamaShow handles POST /api/show.
func (d *Deps) OllamaShow(c *gin.Context) {
	raw, _ := c.GetRawData()
	name := gjson.GetBytes(raw, "model").String()
	if name == "" {
		name = gjson.GetBytes(raw, "name").String()
	}
	if name == "" {
		name = d.snapshot().cfg.Models.Default
	}
	c.JSON(http.StatusOK, gin.H{
		"modelfile":    "",
		"capabilities": []string{"completion", "tools", "thinking"},
		"details": gin.H{
			"family": "gpt",
			"format": "api",
		},
		"model_info": gin.H{
			"general.basename": name,
		},
	})
}

// OllamaVersion handles GET /api/version.
func (d *Deps) OllamaVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": ollamaVersion})
}
