package discovery

import (
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"goldenbookAPI/internal/types/establishment"
)

var ErrEmptyQuery = errors.New("search query is empty")

const (
	DefaultSuggestionLimit = 5

	// DefaultBlurDelay is long enough for a tap on a suggestion to land
	// before the panel hides, short enough not to visibly linger.
	DefaultBlurDelay = 200 * time.Millisecond
)

// Handoff is what "show all results" passes to a new query-scoped session.
type Handoff struct {
	Query string `json:"query"`
	Scope Scope  `json:"scope"`
}

// SearchController narrows an already loaded set as the user types. It never
// fetches; the full result set is handed off to a new Session instead.
type SearchController struct {
	scope     Scope
	set       []establishment.Establishment
	limit     int
	blurDelay time.Duration

	onDiscrepancy func(dropped int)
	onHide        func()

	mu         sync.Mutex
	query      string
	results    []establishment.Establishment
	focused    bool
	visible    bool
	hideTimer  *time.Timer
	generation uint64
}

type SearchOption func(*SearchController)

func WithSuggestionLimit(n int) SearchOption {
	return func(c *SearchController) {
		if n > 0 {
			c.limit = n
		}
	}
}

func WithBlurDelay(d time.Duration) SearchOption {
	return func(c *SearchController) {
		if d > 0 {
			c.blurDelay = d
		}
	}
}

// WithDiscrepancyHook is called whenever name matches outside the active
// category had to be discarded.
func WithDiscrepancyHook(fn func(dropped int)) SearchOption {
	return func(c *SearchController) { c.onDiscrepancy = fn }
}

// WithHideHook is called when the delayed blur actually hides the panel.
func WithHideHook(fn func()) SearchOption {
	return func(c *SearchController) { c.onHide = fn }
}

func NewSearchController(set []establishment.Establishment, scope Scope, opts ...SearchOption) *SearchController {
	c := &SearchController{
		scope:     scope,
		set:       clone(set),
		limit:     DefaultSuggestionLimit,
		blurDelay: DefaultBlurDelay,
		results:   []establishment.Establishment{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetQuery recomputes suggestions for q and returns the capped list.
// An empty query clears the list.
func (c *SearchController) SetQuery(q string) []establishment.Establishment {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.query = q
	if strings.TrimSpace(q) == "" {
		c.results = []establishment.Establishment{}
		c.visible = false
		return []establishment.Establishment{}
	}

	results := ByNameSubstring(c.set, q)
	if c.scope.CategoryID != "" {
		inCategory := ByCategory(results, c.scope.CategoryID)
		if dropped := len(results) - len(inCategory); dropped > 0 {
			log.WithFields(log.Fields{
				"category": c.scope.CategoryID,
				"query":    q,
				"dropped":  dropped,
			}).Warn("Search: name matches outside the active category were discarded")
			if c.onDiscrepancy != nil {
				c.onDiscrepancy(dropped)
			}
		}
		results = inCategory
	}

	c.results = results
	c.visible = c.focused
	return c.capped()
}

func (c *SearchController) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Suggestions is the dropdown list, capped at the suggestion limit.
func (c *SearchController) Suggestions() []establishment.Establishment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capped()
}

// Results is the full, uncapped match list.
func (c *SearchController) Results() []establishment.Establishment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.results)
}

// Focus reveals the panel if a query is present and cancels a pending hide.
func (c *SearchController) Focus() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimer()
	c.focused = true
	c.visible = strings.TrimSpace(c.query) != ""
}

// Blur hides the panel after the blur delay unless focus comes back first.
func (c *SearchController) Blur() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.focused = false
	c.stopTimer()
	gen := c.generation
	c.hideTimer = time.AfterFunc(c.blurDelay, func() {
		c.mu.Lock()
		if c.generation != gen || c.focused {
			c.mu.Unlock()
			return
		}
		wasVisible := c.visible
		c.visible = false
		c.mu.Unlock()

		if wasVisible && c.onHide != nil {
			c.onHide()
		}
	})
}

func (c *SearchController) PanelVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// ShowAll clears local query state and returns the hand-off for a new
// query-scoped session.
func (c *SearchController) ShowAll() (Handoff, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := strings.TrimSpace(c.query)
	if q == "" {
		return Handoff{}, ErrEmptyQuery
	}

	c.stopTimer()
	c.query = ""
	c.results = []establishment.Establishment{}
	c.visible = false

	return Handoff{Query: q, Scope: c.scope}, nil
}

// Stop cancels any pending hide. Call it when the controller is discarded.
func (c *SearchController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimer()
}

func (c *SearchController) capped() []establishment.Establishment {
	n := min(len(c.results), c.limit)
	return clone(c.results[:n])
}

func (c *SearchController) stopTimer() {
	c.generation++
	if c.hideTimer != nil {
		c.hideTimer.Stop()
		c.hideTimer = nil
	}
}
