package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/feed"
	"trade-analytics-lab/internal/metrics"
	"trade-analytics-lab/internal/reporting"
	"trade-analytics-lab/internal/storage"
)

const maxBodyBytes = 1 << 20

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "trade-analytics",
		"uptime":  time.Since(s.start).Round(time.Second).String(),
	})
}

// handlePortfolioStats returns the latest stored snapshot, or a fresh
// computation with ?live=true or a ?from=&to= window.
func (s *Server) handlePortfolioStats(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	q := r.URL.Query()

	var (
		agg *domain.AggregateStatistics
		err error
	)
	switch {
	case q.Get("from") != "" || q.Get("to") != "":
		from, to, perr := parseRange(q.Get("from"), q.Get("to"))
		if perr != nil {
			s.writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		agg, err = s.cfg.Aggregator.ComputeForRange(r.Context(), portfolioID, from, to)
	case q.Get("live") == "true":
		agg, err = s.cfg.Aggregator.ComputeForPortfolio(r.Context(), portfolioID)
	default:
		agg, err = s.cfg.Aggregates.GetLatest(r.Context(), metrics.PortfolioScope(portfolioID))
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newStatsView(agg))
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	history, err := s.cfg.Aggregates.GetHistory(r.Context(), metrics.PortfolioScope(portfolioID))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]statsView, len(history))
	for i, a := range history {
		out[i] = newStatsView(a)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStrategyStats(w http.ResponseWriter, r *http.Request) {
	agg, err := s.cfg.Aggregator.ComputeForStrategy(r.Context(),
		chi.URLParam(r, "portfolioID"), chi.URLParam(r, "strategyID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newStatsView(agg))
}

func (s *Server) handlePortfolioReplays(w http.ResponseWriter, r *http.Request) {
	replays, err := s.cfg.Replays.FindByPortfolioID(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newReplayViews(replays))
}

// handleFindReplays searches by ?symbol=, ?strategy= or ?from=&to= (entry date).
func (s *Server) handleFindReplays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		replays []*domain.Replay
		err     error
	)
	switch {
	case q.Get("symbol") != "":
		replays, err = s.cfg.Replays.FindBySymbol(r.Context(), strings.ToUpper(q.Get("symbol")))
	case q.Get("strategy") != "":
		replays, err = s.cfg.Replays.FindByStrategyID(r.Context(), q.Get("strategy"))
	case q.Get("from") != "" || q.Get("to") != "":
		from, to, perr := parseRange(q.Get("from"), q.Get("to"))
		if perr != nil {
			s.writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		replays, err = s.cfg.Replays.FindByDateRange(r.Context(), from, to)
	default:
		s.writeError(w, http.StatusBadRequest, "one of symbol, strategy or from/to is required")
		return
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newReplayViews(replays))
}

func (s *Server) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	replay, err := s.cfg.Replays.FindByID(r.Context(), chi.URLParam(r, "replayID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newReplayView(replay, true))
}

func (s *Server) handleDeleteReplay(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.cfg.Replays.DeleteByID(r.Context(), chi.URLParam(r, "replayID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "replay not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.cfg.Replays.AppendNote(r.Context(), chi.URLParam(r, "replayID"), strings.TrimSpace(body.Note)); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReport renders the portfolio report as Markdown, or the group
// breakdown as CSV with ?format=csv.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	rep, err := s.cfg.Reports.Generate(r.Context(), metrics.PortfolioScope(portfolioID), portfolioID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		out, err := reporting.RenderGroupsCSV(rep)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		io.WriteString(w, out)
	default:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, reporting.RenderMarkdown(rep))
	}
}

// handlePostExecutions applies one execution or an array of them.
func (s *Server) handlePostExecutions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body")
		return
	}
	execs, err := feed.Decode(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, e := range execs {
		if err := e.Validate(); err != nil {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	if err := s.cfg.Executions.Handle(r.Context(), "http", body); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "executions not applied")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(execs)})
}

// handleSampling returns the sampling totals and the per (user, day)
// counters, optionally filtered by ?user_id=.
func (s *Server) handleSampling(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	states := s.cfg.Sampling.Counters().Snapshot()
	if userID != "" {
		filtered := states[:0]
		for _, st := range states {
			if st.UserID == userID {
				filtered = append(filtered, st)
			}
		}
		states = filtered
	}
	s.writeJSON(w, http.StatusOK, newSamplingView(s.cfg.Sampling.Statistics(), states))
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeStoreError maps storage and aggregation errors to HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, metrics.ErrNoPositions):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseRange accepts RFC 3339 timestamps or YYYY-MM-DD dates. A date-only
// upper bound covers the whole day.
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, errors.New("both from and to are required")
	}
	from, _, err := parseTime(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
	}
	to, dateOnly, err := parseTime(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
	}
	if dateOnly {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to is before from")
	}
	return from, to, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid time %q", s)
	}
	return t.UTC(), false, nil
}
