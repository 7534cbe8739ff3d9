package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/core"
	"grocerybudget/internal/log"
)

const readyProbeTimeout = 5 * time.Second

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})
	fail := func(name, msg string) {
		checks[name] = msg
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "failed: templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	if s.probe == nil {
		checks["chain"] = "not_configured"
	} else if err := s.probe(ctx); err != nil {
		fail("chain", fmt.Sprintf("failed: %v", err))
	} else {
		checks["chain"] = "ok"
	}

	// A missing wallet does not make the process unready; the page shows
	// the connect prompt instead.
	if conn, err := s.expenses.ConnectionStatus(ctx); err != nil {
		checks["wallet"] = fmt.Sprintf("unavailable: %v", err)
	} else if conn.Connected {
		checks["wallet"] = map[string]interface{}{"status": "connected", "account": conn.Address}
	} else {
		checks["wallet"] = "disconnected"
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	submissions := atomic.LoadInt64(&s.appMetrics.submissions)
	failures := atomic.LoadInt64(&s.appMetrics.failures)
	uptime := time.Since(s.appMetrics.uptime)
	cacheEntries := 0
	if s.cacheSize != nil {
		cacheEntries = s.cacheSize()
	}
	loading := 0
	if s.expenses.Status().IsLoading() {
		loading = 1
	}

	w.WriteHeader(http.StatusOK)

	// Write metrics in Prometheus-like format
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP expense_submissions_total Total expense submissions sent to the chain\n")
	fmt.Fprintf(w, "# TYPE expense_submissions_total counter\n")
	fmt.Fprintf(w, "expense_submissions_total %d\n\n", submissions)

	fmt.Fprintf(w, "# HELP expense_submission_failures_total Submissions rejected by wallet, network or contract\n")
	fmt.Fprintf(w, "# TYPE expense_submission_failures_total counter\n")
	fmt.Fprintf(w, "expense_submission_failures_total %d\n\n", failures)

	fmt.Fprintf(w, "# HELP submission_loading Whether a submission is in flight\n")
	fmt.Fprintf(w, "# TYPE submission_loading gauge\n")
	fmt.Fprintf(w, "submission_loading %d\n\n", loading)

	fmt.Fprintf(w, "# HELP chain_read_cache_entries Current chain read cache entries\n")
	fmt.Fprintf(w, "# TYPE chain_read_cache_entries gauge\n")
	fmt.Fprintf(w, "chain_read_cache_entries %d\n\n", cacheEntries)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", uptime.Seconds())
}

// connection reports the wallet status; lookup failures count as disconnected.
func (s *Server) connection(r *http.Request) chain.Connection {
	conn, err := s.expenses.ConnectionStatus(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "Wallet status unavailable",
			log.FieldError, err,
			log.FieldErrorType, core.ErrorType(err))
		return chain.Connection{}
	}
	return conn
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireMethod(r, http.MethodGet, http.MethodHead); resp != nil {
		resp.Write(w)
		return
	}

	conn := s.connection(r)
	data := pageView{Connected: conn.Connected, Account: conn.Address}
	if conn.Connected {
		data.Totals = newTotalsView(conn, s.expenses.GetAggregateView(r.Context()))
		data.Status = newStatusView(s.expenses.Status(), false)
	}

	body, ok := s.render(r, "index.html", data)
	if !ok {
		InternalServerError("Page unavailable").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

// handleTotals renders the aggregates partial.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	conn := s.connection(r)
	view := totalsView{}
	if conn.Connected {
		view = newTotalsView(conn, s.expenses.GetAggregateView(r.Context()))
	}

	body, ok := s.render(r, "totals", view)
	if !ok {
		InternalServerError("Totals unavailable").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

// handleStatus renders the submission status partial. A confirmed status
// asks the page to reload the totals.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	view := newStatusView(s.expenses.Status(), true)
	body, ok := s.render(r, "status-partial", view)
	if !ok {
		InternalServerError("Status unavailable").Write(w)
		return
	}

	resp := NewHTMXResponse().BodyHTML(body)
	if view.IsConfirmed {
		resp.TriggerAggregatesRefresh()
	}
	resp.Write(w)
}
