package translator

import (
	"context"
	"errors"
	"io"
	"net/http"

	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/sseutil"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

// Stream pumps the upstream SSE body through the state machine and writes
// rendered frames to w, flushing after every write. It returns nil on normal
// completion and on client cancellation; a malformed payload is logged and
// skipped, never fatal.
func Stream(ctx context.Context, body io.Reader, w io.Writer, st *State, r Renderer) error {
	flusher, _ := w.(http.Flusher)

	scanner := sseutil.NewScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		data, ok := sseutil.DataPayload(scanner.Text())
		if !ok {
			continue
		}
		ev, ok := upstream.ParseEvent(data)
		if !ok {
			log.Debugf("skipping malformed upstream payload: %.120s", data)
			continue
		}
		if err := flushEmissions(ctx, w, flusher, st, r, st.Apply(ev)); err != nil {
			return err
		}
		if st.Done() {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	// Upstream closed without a terminal event. Close out the stream so the
	// client still gets a well-formed ending.
	if !st.Done() {
		return flushEmissions(ctx, w, flusher, st, r, st.Apply(upstream.Event{Kind: upstream.KindCompleted}))
	}
	return nil
}

func flushEmissions(ctx context.Context, w io.Writer, flusher http.Flusher, st *State, r Renderer, emissions []Emission) error {
	for _, e := range emissions {
		fb := r.Render(st, e)
		if len(fb) == 0 {
			continue
		}
		if _, err := w.Write(fb); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
