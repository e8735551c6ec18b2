package google

import (
	"fmt"
	"strings"

	"budgetbook/internal/core"
)

var transactionColumns = []string{"Date", "Type", "Category", "Amount", "Notes"}

// parseTransactions turns sheet rows into raw entries for ym. The first row
// is the header; columns are located by name so they may be reordered.
// Rows whose date is empty or unparseable are skipped and counted.
func parseTransactions(values [][]any, ym core.YearMonth) ([]core.RawEntry, int) {
	if len(values) == 0 {
		return nil, 0
	}
	headers := toStrings(values[0])
	cols := make(map[string]int, len(transactionColumns))
	for i, name := range transactionColumns {
		idx := indexOf(headers, name)
		if idx == -1 {
			// headerless sheet: assume the canonical order
			idx = i
		}
		cols[name] = idx
	}
	start := 1
	if indexOf(headers, "Date") == -1 {
		start = 0
	}

	var (
		out     []core.RawEntry
		skipped int
	)
	for _, row := range values[start:] {
		date, err := core.ParseDate(fmt.Sprint(safeGet(row, cols["Date"])))
		if err != nil {
			if !emptyRow(row) {
				skipped++
			}
			continue
		}
		if !ym.Contains(date) {
			continue
		}
		entry := core.RawEntry{"Date": date.String()}
		for _, name := range transactionColumns[1:] {
			if v := safeGet(row, cols[name]); v != nil {
				entry[name] = v
			}
		}
		out = append(out, entry)
	}
	return out, skipped
}

// parseCategories reads Name | Type | MonthlyBudget rows. The second result
// maps each category to its 1-based sheet row for in-place updates.
func parseCategories(values [][]any) ([]core.Category, map[string]int) {
	rowOf := make(map[string]int)
	if len(values) == 0 {
		return nil, rowOf
	}
	start := 0
	if h := toStrings(values[0]); indexOf(h, "Name") != -1 || indexOf(h, "Category") != -1 {
		start = 1
	}
	var out []core.Category
	for i := start; i < len(values); i++ {
		row := toStrings(values[i])
		name := strings.TrimSpace(stringAt(row, 0))
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		cat := core.Category{Name: name, Type: core.ParseTxType(stringAt(row, 1))}
		if b := stringAt(row, 2); b != "" {
			if m, err := core.ParseMoney(cleanNumber(b)); err == nil {
				cat.MonthlyBudget = m
			}
		}
		key := categoryRowKey(cat.Name, cat.Type)
		if _, dup := rowOf[key]; dup {
			continue
		}
		rowOf[key] = i + 1
		out = append(out, cat)
	}
	return out, rowOf
}

func transactionRow(tx core.Transaction) []any {
	return []any{tx.Date.String(), tx.Type.Label(), tx.Category, tx.Amount.Float64(), tx.Notes}
}

func categoryRowKey(name string, t core.TxType) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + string(t)
}

// cleanNumber strips currency symbols and thousands separators that
// formatted cells carry, e.g. "₹1,200.00".
func cleanNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func safeGet(row []any, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func stringAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func emptyRow(row []any) bool {
	for _, v := range row {
		if strings.TrimSpace(fmt.Sprint(v)) != "" {
			return false
		}
	}
	return true
}
