package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/identity"
	"fintrack/internal/live"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/summary"
)

const sseKeepAlive = 25 * time.Second

func (s *Server) filterFromRequest(r *http.Request) (summary.FilterSelection, error) {
	return ParseFilterSelection(r.URL.Query(), s.summaries.CurrentMonth(), s.summaries.Location())
}

// handleSummary returns the summary of the caller's records for the requested window.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sel, err := s.filterFromRequest(r)
	if err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}

	cctx, cancel := context.WithTimeout(r.Context(), s.readTimeout)
	defer cancel()

	result, err := s.summaries.Summary(cctx, identity.UserIDFromContext(r.Context()), sel)
	if err != nil {
		writeError(w, r, log.OpCompute, fmt.Errorf("compute summary: %w", err))
		return
	}
	NewJSONResponse().Body(newSummaryResponse(result)).Write(w)
}

// handleSummaryStream pushes a "summary" event every time the caller's records change.
// Slow readers only ever see the latest result.
func (s *Server) handleSummaryStream(w http.ResponseWriter, r *http.Request) {
	sel, err := s.filterFromRequest(r)
	if err != nil {
		writeError(w, r, log.OpWatch, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalServerError("streaming unsupported").Write(w)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	userID := identity.UserIDFromContext(ctx)
	feeds, err := live.Follow(ctx, s.watcher, userID, nil)
	if err != nil {
		writeError(w, r, log.OpWatch, err)
		return
	}

	updated := make(chan struct{}, 1)
	dash := live.New(
		func(ctx context.Context, sel summary.FilterSelection, txs []core.Transaction, streams []core.IncomeStream) summary.Summary {
			return s.summaries.Compute(ctx, userID, sel, services.Snapshot{Transactions: txs, Streams: streams})
		},
		func(summary.Summary) {
			select {
			case updated <- struct{}{}:
			default:
			}
		},
		s.logger,
	)
	go func() { _ = dash.Run(ctx, sel, feeds) }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-updated:
			cur := dash.Current()
			if cur == nil {
				continue
			}
			payload, err := json.Marshal(newSummaryResponse(*cur))
			if err != nil {
				log.FromContext(ctx).ErrorContext(ctx, "Encode summary event", log.FieldError, err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: summary\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
