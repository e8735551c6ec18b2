package http

import (
	"errors"
	"net/http"

	"budgetbook/internal/auth"
	"budgetbook/internal/core"
	"budgetbook/internal/ledger"
	applog "budgetbook/internal/log"
	"budgetbook/internal/store"
	"budgetbook/internal/view"
)

// handleMonth navigates the session to a month and returns its frame.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	ym, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.loadMonth(w, r, ym)
}

// handleRefresh drops the cached month before loading it again.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ym, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.months.Invalidate(auth.UserFrom(r.Context()).ID, ym)
	s.loadMonth(w, r, ym)
}

// loadMonth fetches ym and applies it to the session controller. A store
// failure other than an auth rejection yields an empty degraded month so
// the view still renders.
func (s *Server) loadMonth(w http.ResponseWriter, r *http.Request, ym core.YearMonth) {
	ctx := r.Context()
	ctrl := s.sessions.controller(w, r)
	seq := ctrl.BeginLoad()

	data, err := s.months.Load(ctx, auth.UserFrom(ctx).ID, ym)
	if errors.Is(err, store.ErrUnauthorized) {
		writeError(w, r, err)
		return
	}
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Month load failed, rendering empty month",
			applog.FieldMonth, ym.String(), applog.FieldError, err)
		data = view.MonthData{Month: ym, Budget: core.BudgetMap{}, Degraded: true}
	}

	frame, applied := ctrl.Load(seq, data)
	if !applied {
		applog.FromContext(ctx).DebugContext(ctx, "Discarded superseded month load", applog.FieldMonth, ym.String())
	}
	s.writeFrame(w, frame, !applied)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	s.writeFrame(w, s.sessions.controller(w, r).Current(), false)
}

func (s *Server) handleSelectType(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type string `json:"type"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := core.ParseFilter(body.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeFrame(w, s.sessions.controller(w, r).SelectType(f), false)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := view.ParseMode(body.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeFrame(w, s.sessions.controller(w, r).SetViewMode(m), false)
}

func (s *Server) handleToggleExpand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
		Type     string `json:"type"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Category == "" {
		writeError(w, r, core.ErrEmptyCategory)
		return
	}
	key := ledger.CategoryKey{Category: body.Category, Type: core.ParseTxType(body.Type)}
	s.writeFrame(w, s.sessions.controller(w, r).ToggleExpand(key), false)
}

func (s *Server) handleCollapse(w http.ResponseWriter, r *http.Request) {
	s.writeFrame(w, s.sessions.controller(w, r).CollapseAll(), false)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.writeFrame(w, s.sessions.controller(w, r).Reset(), false)
}

type categoryView struct {
	Name          string      `json:"name"`
	Type          core.TxType `json:"type"`
	MonthlyBudget core.Money  `json:"monthlyBudget"`
	YearlyBudget  core.Money  `json:"yearlyBudget"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.txs.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{Name: c.Name, Type: c.Type, MonthlyBudget: c.MonthlyBudget, YearlyBudget: c.YearlyBudget()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "categories": out})
}

func (s *Server) handleSaveBudget(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Budgets []budgetInput `json:"budgets"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cats := make([]core.Category, 0, len(body.Budgets))
	for _, b := range body.Budgets {
		amount, err := core.ParseAmount(b.MonthlyBudget)
		if err != nil {
			writeError(w, r, err)
			return
		}
		cats = append(cats, core.Category{Name: sanitize(b.Category), Type: core.ParseTxType(b.Type), MonthlyBudget: amount})
	}
	if err := s.txs.SaveBudget(r.Context(), cats); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "saved": len(cats)})
}

func (s *Server) handleCreateTransactions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date         string             `json:"date"`
		Transactions []transactionInput `json:"transactions"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := core.ParseDate(body.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := toTransactions(body.Transactions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.txs.Save(r.Context(), date, txs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "saved": n, "date": date.String(), "month": date.YearMonth().String()})
}

// handleCreateMonthly saves entries that belong to a month rather than a
// day. They are stored on the month's first day.
func (s *Server) handleCreateMonthly(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Month        string             `json:"month"`
		Transactions []transactionInput `json:"transactions"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	ym, err := core.ParseYearMonth(body.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := toTransactions(body.Transactions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.txs.SaveMonthly(r.Context(), ym, txs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "saved": n, "date": ym.FirstDay().String(), "month": ym.String()})
}
