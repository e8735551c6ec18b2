package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"budgetbook/internal/core"
	"budgetbook/internal/store/rpc"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("malformed request")

func withForwardedToken(ctx context.Context, token string) context.Context {
	return rpc.WithIDToken(ctx, token)
}

// decodeJSON reads exactly one JSON object into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadRequest)
	}
	return nil
}

// monthFromPath reads the {year}/{month} path values.
func monthFromPath(r *http.Request) (core.YearMonth, error) {
	y, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return core.YearMonth{}, fmt.Errorf("%w: year %q", core.ErrInvalidYear, r.PathValue("year"))
	}
	m, err := strconv.Atoi(r.PathValue("month"))
	if err != nil {
		return core.YearMonth{}, fmt.Errorf("%w: month %q", core.ErrInvalidMonth, r.PathValue("month"))
	}
	return core.NewYearMonth(y, m)
}

type transactionInput struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Amount   any    `json:"amount"`
	Notes    string `json:"notes"`
}

func (in transactionInput) toTransaction() (core.Transaction, error) {
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Type:     core.ParseTxType(in.Type),
		Category: sanitize(in.Category),
		Amount:   amount,
		Notes:    sanitize(in.Notes),
	}, nil
}

func toTransactions(in []transactionInput) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(in))
	for i, t := range in {
		tx, err := t.toTransaction()
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

type budgetInput struct {
	Category      string `json:"category"`
	Type          string `json:"type"`
	MonthlyBudget any    `json:"monthlyBudget"`
}

// sanitize trims and drops control characters other than tab and newline.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
