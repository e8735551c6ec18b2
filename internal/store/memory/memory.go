package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

var _ store.Backend = (*Store)(nil)

// Store keeps raw entries in memory, keyed by date, the same shape a remote
// store returns.
type Store struct {
	mu      sync.Mutex
	entries core.MonthlyRawStore
	cats    []core.Category
}

func New(cats []core.Category) *Store {
	return &Store{entries: make(core.MonthlyRawStore), cats: dedupe(cats)}
}

// seedFile is the YAML layout accepted by NewFromFile.
type seedFile struct {
	Categories []struct {
		Name          string `yaml:"name"`
		Type          string `yaml:"type"`
		MonthlyBudget string `yaml:"monthlyBudget"`
	} `yaml:"categories"`
	Entries []map[string]any `yaml:"entries"`
}

// NewFromFile loads categories and raw entries from a YAML seed. A missing
// file yields a store with default categories.
func NewFromFile(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(defaultCategories()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}

	cats := make([]core.Category, 0, len(seed.Categories))
	for _, c := range seed.Categories {
		cat := core.Category{Name: strings.TrimSpace(c.Name), Type: core.ParseTxType(c.Type)}
		if c.MonthlyBudget != "" {
			if cat.MonthlyBudget, err = core.ParseMoney(c.MonthlyBudget); err != nil {
				return nil, fmt.Errorf("category %q: %w", c.Name, err)
			}
		}
		cats = append(cats, cat)
	}
	if len(cats) == 0 {
		cats = defaultCategories()
	}

	s := New(cats)
	raw := make([]core.RawEntry, 0, len(seed.Entries))
	for _, e := range seed.Entries {
		raw = append(raw, core.RawEntry(e))
	}
	for k, v := range core.GroupByDate(raw) {
		s.entries[k] = append(s.entries[k], v...)
	}
	return s, nil
}

func defaultCategories() []core.Category {
	return []core.Category{
		{Name: "Food", Type: core.TypeExpense},
		{Name: "Rent", Type: core.TypeExpense},
		{Name: "Transport", Type: core.TypeExpense},
		{Name: "Salary", Type: core.TypeIncome},
		{Name: "Investments", Type: core.TypeSavings},
		{Name: "Loan", Type: core.TypePayoff},
	}
}

// FetchMonth returns a copy of the entries stored for ym.
func (s *Store) FetchMonth(_ context.Context, ym core.YearMonth) (core.MonthlyRawStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(core.MonthlyRawStore)
	prefix := ym.String() + "-"
	for k, v := range s.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rows := make([]core.RawEntry, len(v))
		for i, e := range v {
			rows[i] = copyEntry(e)
		}
		out[k] = rows
	}
	return out, nil
}

// FetchBudget sums category budgets; the memory store has no per-month
// overrides.
func (s *Store) FetchBudget(_ context.Context, _ core.YearMonth) (core.BudgetMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.BudgetFromCategories(s.cats), nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.cats...), nil
}

// SaveTransactions stores txs under date.
func (s *Store) SaveTransactions(_ context.Context, date core.Date, txs []core.Transaction) (int, error) {
	for _, tx := range txs {
		tx.Date = date
		if err := tx.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := date.String()
	for _, tx := range txs {
		tx.Date = date
		s.entries[key] = append(s.entries[key], tx.ToRaw())
	}
	return len(txs), nil
}

// SaveBudget updates existing categories and adds unknown ones.
func (s *Store) SaveBudget(_ context.Context, categories []core.Category) error {
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range categories {
		found := false
		for i := range s.cats {
			if strings.EqualFold(s.cats[i].Name, c.Name) && s.cats[i].Type == c.Type {
				s.cats[i].MonthlyBudget = c.MonthlyBudget
				found = true
				break
			}
		}
		if !found {
			s.cats = append(s.cats, c)
		}
	}
	return nil
}

// Dates lists the stored date keys in order. Used by tests and the CLI.
func (s *Store) Dates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyEntry(e core.RawEntry) core.RawEntry {
	out := make(core.RawEntry, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func dedupe(in []core.Category) []core.Category {
	type key struct {
		name string
		typ  core.TxType
	}
	seen := map[key]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		k := key{strings.ToLower(c.Name), c.Type}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
