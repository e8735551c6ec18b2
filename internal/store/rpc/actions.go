package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

type monthResponse struct {
	ExpensesByDate map[string][]map[string]any `json:"expensesByDate"`
	Expenses       []map[string]any            `json:"expenses"`
}

// FetchMonth accepts both response shapes: entries keyed by date, or a flat
// list grouped here by each entry's date field.
func (c *Client) FetchMonth(ctx context.Context, ym core.YearMonth) (core.MonthlyRawStore, error) {
	var resp monthResponse
	err := c.call(ctx, actionGetMonth, map[string]any{"year": ym.Year, "month": ym.Month}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.ExpensesByDate != nil {
		out := make(core.MonthlyRawStore, len(resp.ExpensesByDate))
		for date, entries := range resp.ExpensesByDate {
			rows := make([]core.RawEntry, 0, len(entries))
			for _, e := range entries {
				if e != nil {
					rows = append(rows, core.RawEntry(e))
				}
			}
			out[date] = rows
		}
		return out, nil
	}
	flat := make([]core.RawEntry, 0, len(resp.Expenses))
	for _, e := range resp.Expenses {
		if e != nil {
			flat = append(flat, core.RawEntry(e))
		}
	}
	return core.GroupByDate(flat), nil
}

type budgetResponse struct {
	Budget map[string]any `json:"budget"`
}

// FetchBudget asks for the month budget. Endpoints without that action get
// the budget derived from category budgets instead.
func (c *Client) FetchBudget(ctx context.Context, ym core.YearMonth) (core.BudgetMap, error) {
	var resp budgetResponse
	err := c.call(ctx, actionGetBudget, map[string]any{"year": ym.Year, "month": ym.Month}, &resp)
	var actionErr *ActionError
	if errors.As(err, &actionErr) && actionErr.unknownAction() {
		cats, err := c.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		return core.BudgetFromCategories(cats), nil
	}
	if err != nil {
		return nil, err
	}

	budget := make(core.BudgetMap)
	for k, v := range resp.Budget {
		t := core.ParseTxType(k)
		if !t.IsKnown() {
			continue
		}
		amount, err := core.ParseAmount(v)
		if err != nil {
			c.logger.WarnContext(ctx, "Ignoring malformed budget value", "type", k, "value", fmt.Sprint(v))
			continue
		}
		budget[t] = amount
	}
	return budget, nil
}

type categoriesResponse struct {
	Categories []struct {
		Name          string `json:"name"`
		Type          string `json:"type"`
		Budget        any    `json:"budget"`
		MonthlyBudget any    `json:"monthlyBudget"`
	} `json:"categories"`
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var resp categoriesResponse
	if err := c.call(ctx, actionGetCategories, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]core.Category, 0, len(resp.Categories))
	for _, rc := range resp.Categories {
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			continue
		}
		cat := core.Category{Name: name, Type: core.ParseTxType(rc.Type)}
		budget := rc.MonthlyBudget
		if budget == nil {
			budget = rc.Budget
		}
		if budget != nil {
			if m, err := core.ParseAmount(budget); err == nil {
				cat.MonthlyBudget = m
			}
		}
		out = append(out, cat)
	}
	return out, nil
}

type expensePayload struct {
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Notes    string  `json:"notes"`
}

// SaveTransactions sends every transaction of one date in a single call.
func (c *Client) SaveTransactions(ctx context.Context, date core.Date, txs []core.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	expenses := make([]expensePayload, 0, len(txs))
	for _, tx := range txs {
		tx.Date = date
		if err := tx.Validate(); err != nil {
			return 0, err
		}
		expenses = append(expenses, expensePayload{
			Type:     tx.Type.Label(),
			Category: tx.Category,
			Amount:   tx.Amount.Float64(),
			Notes:    tx.Notes,
		})
	}
	err := c.call(ctx, actionSaveExpenses, map[string]any{"date": date.String(), "expenses": expenses}, nil)
	if err != nil {
		return 0, err
	}
	return len(txs), nil
}

type budgetPayload struct {
	Category      string  `json:"category"`
	Type          string  `json:"type"`
	MonthlyBudget float64 `json:"monthlyBudget"`
	YearlyBudget  float64 `json:"yearlyBudget"`
}

func (c *Client) SaveBudget(ctx context.Context, categories []core.Category) error {
	budgets := make([]budgetPayload, 0, len(categories))
	for _, cat := range categories {
		if err := cat.Validate(); err != nil {
			return err
		}
		budgets = append(budgets, budgetPayload{
			Category:      cat.Name,
			Type:          cat.Type.Label(),
			MonthlyBudget: cat.MonthlyBudget.Float64(),
			YearlyBudget:  cat.YearlyBudget().Float64(),
		})
	}
	return c.call(ctx, actionSaveBudget, map[string]any{"budgets": budgets}, nil)
}

// Ping checks the endpoint answers and accepts the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.ListCategories(ctx); err != nil && !errors.Is(err, store.ErrUnauthorized) {
		return err
	}
	return nil
}
