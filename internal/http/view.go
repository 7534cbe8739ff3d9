package http

import (
	"bytes"
	"net/http"

	"grocerybudget/internal/chain"
	"grocerybudget/internal/core"
	"grocerybudget/internal/log"
)

type pageView struct {
	Connected bool
	Account   string
	Totals    totalsView
	Status    statusView
}

type totalsView struct {
	Connected    bool
	TotalSpent   string
	ExpenseCount int64
	Expenses     []expenseRow
}

type expenseRow struct {
	Item   string
	Amount string
	When   string
}

type statusView struct {
	Phase        core.Phase
	IsLoading    bool
	IsSubmitting bool
	IsConfirming bool
	IsConfirmed  bool
	Hash         string
	ShortHash    string
	Error        string
	ErrorLabel   string
	// OOB renders the submit button as an out-of-band swap.
	OOB bool
}

func newTotalsView(conn chain.Connection, agg core.AggregateView) totalsView {
	v := totalsView{
		Connected:    conn.Connected,
		TotalSpent:   agg.TotalSpent,
		ExpenseCount: agg.ExpenseCount,
	}
	// Newest first.
	for i := len(agg.Expenses) - 1; i >= 0; i-- {
		e := agg.Expenses[i]
		v.Expenses = append(v.Expenses, expenseRow{
			Item:   e.Item,
			Amount: e.Amount,
			When:   formatTimestamp(e.Time()),
		})
	}
	return v
}

func newStatusView(st core.SubmissionState, oob bool) statusView {
	v := statusView{
		Phase:        st.Phase(),
		IsLoading:    st.IsLoading(),
		IsSubmitting: st.Submitting || st.IsPending,
		IsConfirming: st.IsConfirming,
		IsConfirmed:  st.IsConfirmed,
		Hash:         st.TransactionHash,
		ShortHash:    shortHash(st.TransactionHash),
		OOB:          oob,
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
		v.ErrorLabel = errorLabel(core.ErrorType(st.Err))
	}
	return v
}

func errorLabel(errorType string) string {
	switch errorType {
	case "parse_error":
		return "Invalid amount"
	case "contract_revert_error":
		return "Transaction reverted"
	case "timeout_error":
		return "Receipt timed out"
	case "wallet_error":
		return "Wallet error"
	case "network_error":
		return "Network error"
	default:
		return "Error"
	}
}

// render executes a template into a buffer so a failure never leaves a
// half-written response behind.
func (s *Server) render(r *http.Request, name string, data any) ([]byte, bool) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldOperation, log.OpRender)
		return nil, false
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender,
			"template", name)
		return nil, false
	}
	return buf.Bytes(), true
}
