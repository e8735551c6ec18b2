// Package view holds the per-session selection state and turns it, together
// with the loaded month, into render frames.
package view

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"budgetbook/internal/core"
	"budgetbook/internal/ledger"
)

type Mode string

const (
	ModeTransactions Mode = "transactions"
	ModeSummary      Mode = "summary"
)

var ErrInvalidMode = errors.New("invalid view mode")

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTransactions, ModeSummary:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// SelectionState is what the user has chosen to look at. It survives month
// navigation and is only cleared by Reset.
type SelectionState struct {
	SelectedType core.Filter
	Mode         Mode
	Expanded     map[ledger.CategoryKey]bool
}

func NewSelectionState() *SelectionState {
	return &SelectionState{
		SelectedType: core.FilterAll,
		Mode:         ModeTransactions,
		Expanded:     make(map[ledger.CategoryKey]bool),
	}
}

func (s *SelectionState) clone() SelectionState {
	out := SelectionState{SelectedType: s.SelectedType, Mode: s.Mode, Expanded: make(map[ledger.CategoryKey]bool, len(s.Expanded))}
	for k := range s.Expanded {
		out.Expanded[k] = true
	}
	return out
}

// MonthData is one fetched month, already normalized.
type MonthData struct {
	Month    core.YearMonth
	Records  []core.Transaction
	Budget   core.BudgetMap
	Report   core.Report
	Degraded bool
}

// Frame is everything a renderer needs for one paint.
type Frame struct {
	Month    string                   `json:"month"`
	Mode     Mode                     `json:"mode"`
	Selected core.Filter              `json:"selected_type"`
	Totals   ledger.Totals            `json:"totals"`
	Hints    ledger.Hints             `json:"hints"`
	List     *ledger.ListView         `json:"list,omitempty"`
	Summary  []ledger.CategorySummary `json:"summary,omitempty"`
	Empty    ledger.EmptyReason       `json:"empty,omitempty"`
	Expanded []string                 `json:"expanded"`
	Loaded   bool                     `json:"loaded"`
	Degraded bool                     `json:"degraded,omitempty"`
}

// Controller applies user transitions to a SelectionState and re-renders
// through the ledger functions. It is safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	state  *SelectionState
	data   MonthData
	loaded bool
	seq    uint64
}

// NewController takes ownership of state. A nil state starts from the
// initial selection.
func NewController(state *SelectionState) *Controller {
	if state == nil {
		state = NewSelectionState()
	}
	if state.Expanded == nil {
		state.Expanded = make(map[ledger.CategoryKey]bool)
	}
	if state.SelectedType == "" {
		state.SelectedType = core.FilterAll
	}
	if state.Mode == "" {
		state.Mode = ModeTransactions
	}
	return &Controller{state: state}
}

// SelectType selects f, or goes back to "all" when f is already selected.
func (c *Controller) SelectType(f core.Filter) Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f == "" || f == c.state.SelectedType {
		f = core.FilterAll
	}
	c.state.SelectedType = f
	return c.render()
}

// SetViewMode switches between the list and the category summary. The
// selected type is untouched.
func (c *Controller) SetViewMode(m Mode) Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Mode = m
	return c.render()
}

// ToggleExpand flips the detail rows of one summary entry. Outside summary
// mode it does nothing.
func (c *Controller) ToggleExpand(key ledger.CategoryKey) Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Mode != ModeSummary {
		return c.render()
	}
	if c.state.Expanded[key] {
		delete(c.state.Expanded, key)
	} else {
		c.state.Expanded[key] = true
	}
	return c.render()
}

// CollapseAll clears the expanded set only.
func (c *Controller) CollapseAll() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.state.Expanded)
	return c.render()
}

// Reset restores the initial selection. The loaded month stays.
func (c *Controller) Reset() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.state = *NewSelectionState()
	return c.render()
}

// BeginLoad registers a month fetch and returns its ticket. Only the
// most recently issued ticket may be applied by Load.
func (c *Controller) BeginLoad() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Load replaces the month data wholesale when seq is still current.
// Selection and expansion are kept. A stale ticket is discarded and the
// second result is false.
func (c *Controller) Load(seq uint64, data MonthData) (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		return c.render(), false
	}
	c.data = data
	c.loaded = true
	return c.render(), true
}

// Current returns the frame for the present state without changing it.
func (c *Controller) Current() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.render()
}

// State returns a copy of the selection.
func (c *Controller) State() SelectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Month returns the month currently loaded.
func (c *Controller) Month() (core.YearMonth, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Month, c.loaded
}

func (c *Controller) render() Frame {
	totals := ledger.ComputeTotals(c.data.Records)
	f := Frame{
		Mode:     c.state.Mode,
		Selected: c.state.SelectedType,
		Totals:   totals,
		Hints:    ledger.BudgetHints(totals, c.data.Budget),
		Expanded: make([]string, 0, len(c.state.Expanded)),
		Loaded:   c.loaded,
		Degraded: c.data.Degraded,
	}
	if c.loaded {
		f.Month = c.data.Month.String()
	}
	for k := range c.state.Expanded {
		f.Expanded = append(f.Expanded, k.String())
	}
	slices.Sort(f.Expanded)

	if c.state.Mode == ModeSummary {
		f.Summary = ledger.Summarize(c.data.Records, c.state.SelectedType, c.state.Expanded)
		f.Empty = ledger.EmptyFor(c.data.Records, ledger.Filtered(c.data.Records, c.state.SelectedType))
		return f
	}
	list := ledger.BuildList(c.data.Records, c.state.SelectedType)
	f.List = &list
	f.Empty = list.Empty
	return f
}
