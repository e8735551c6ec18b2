package ledger

import (
	"sort"

	"budgetbook/internal/core"
)

// CategoryKey identifies a summary row. The same category name under two
// types yields two rows.
type CategoryKey struct {
	Category string      `json:"category"`
	Type     core.TxType `json:"type"`
}

func (k CategoryKey) String() string {
	return k.Category + "|" + string(k.Type)
}

// KeyOf returns the summary key of a transaction.
func KeyOf(tx core.Transaction) CategoryKey {
	return CategoryKey{Category: tx.Category, Type: tx.Type}
}

type CategorySummary struct {
	Key          CategoryKey        `json:"key"`
	Total        core.Money         `json:"total"`
	Count        int                `json:"count"`
	Transactions []core.Transaction `json:"transactions"`
	Expanded     bool               `json:"expanded"`
}

// Summarize groups the filtered records by (category, type). Rows are
// ordered by total descending; equal totals keep the order in which their
// first record appears in the newest-first stream. Each row's transactions
// are newest first. expanded may be nil.
func Summarize(records []core.Transaction, filter core.Filter, expanded map[CategoryKey]bool) []CategorySummary {
	rows := NewestFirst(Filtered(records, filter))

	index := make(map[CategoryKey]int)
	var out []CategorySummary
	for _, tx := range rows {
		key := KeyOf(tx)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, CategorySummary{Key: key})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
		out[i].Transactions = append(out[i].Transactions, tx)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.Cmp(out[j].Total) > 0
	})
	for i := range out {
		out[i].Expanded = expanded[out[i].Key]
	}
	return out
}
