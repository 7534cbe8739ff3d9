package http

import (
	"errors"
	"net/http"

	"grocerybudget/internal/core"
	"grocerybudget/internal/log"
)

const (
	maxItemLength   = 200
	maxAmountLength = 78 // digits of 2^256
)

// handleCreateExpense submits an expense from the entry form.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentHTTP)

	if !s.connection(r).Connected {
		ConflictError("Connect a wallet before adding expenses").Write(w)
		return
	}

	item := sanitizeInput(r.Form.Get("item"))
	amount := sanitizeInput(r.Form.Get("amount"))
	if len(item) > maxItemLength {
		UnprocessableEntityError("Item is too long").Write(w)
		return
	}
	if len(amount) > maxAmountLength {
		UnprocessableEntityError("Amount is too large").Write(w)
		return
	}

	// Either field empty: nothing to submit.
	if item == "" || amount == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	err := s.expenses.AddExpense(ctx, item, amount)

	var parseErr *core.ParseError
	if errors.As(err, &parseErr) {
		logger.WarnContext(ctx, "Rejected expense amount",
			log.NewFields().WithExpense(item, amount).WithOperation(log.OpParse).WithError(err, core.ErrorType(err)).ToSlice()...)
		UnprocessableEntityError("Amount must be a whole non-negative number").Write(w)
		return
	}

	s.appMetrics.recordSubmission(err)
	status := newStatusView(s.expenses.Status(), true)
	body, ok := s.render(r, "status-partial", status)
	if !ok {
		InternalServerError("Status unavailable").Write(w)
		return
	}

	if err != nil {
		// The error is on the status panel; inputs stay as typed.
		logger.ErrorContext(ctx, "Expense submission failed",
			log.NewFields().WithExpense(item, amount).WithOperation(log.OpSubmit).WithError(err, core.ErrorType(err)).ToSlice()...)
		NewHTMXResponse().BodyHTML(body).Write(w)
		return
	}

	logger.InfoContext(ctx, "Expense submitted",
		log.NewFields().WithExpense(item, amount).WithTx(status.Hash, string(status.Phase)).ToSlice()...)
	NewHTMXResponse().
		BodyHTML(body).
		TriggerFormReset().
		TriggerExpenseSubmitted(status.Hash).
		Write(w)
}
