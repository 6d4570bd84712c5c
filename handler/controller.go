package handler

import (
	"sync"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/apperr"
)

// FilterOptions scopes a before-action filter to a set of actions.
// An empty Only means every action.
type FilterOptions struct {
	Only   []string
	Except []string
}

func (o FilterOptions) applies(action string) bool {
	for _, name := range o.Except {
		if name == action {
			return false
		}
	}
	if len(o.Only) == 0 {
		return true
	}
	for _, name := range o.Only {
		if name == action {
			return true
		}
	}
	return false
}

type filter struct {
	name    string
	run     tokenauth.Handler
	options FilterOptions
}

// Controller is a handling class: a named set of actions that share a
// before-action filter chain and inherit from an optional parent.
type Controller struct {
	name   string
	parent *Controller

	mu      sync.RWMutex
	filters []filter
	skipped map[string]struct{}
	actions map[string]tokenauth.Handler
}

// NewController creates a controller. parent may be nil.
func NewController(name string, parent *Controller) *Controller {
	return &Controller{
		name:    name,
		parent:  parent,
		skipped: map[string]struct{}{},
		actions: map[string]tokenauth.Handler{},
	}
}

// Name returns the controller name.
func (c *Controller) Name() string { return c.name }

// Parent returns the parent controller, or nil.
func (c *Controller) Parent() *Controller { return c.parent }

// IsA reports whether c is other or descends from it.
func (c *Controller) IsA(other *Controller) bool {
	for current := c; current != nil; current = current.parent {
		if current == other {
			return true
		}
	}
	return false
}

// BeforeAction appends a named filter. A filter with the same name defined on
// this controller is replaced, and an inherited one is shadowed.
func (c *Controller) BeforeAction(name string, run tokenauth.Handler, options FilterOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filters = removeFilter(c.filters, name)
	c.filters = append(c.filters, filter{name: name, run: run, options: options})
}

// SkipBeforeAction removes a filter from this controller's chain, whether it
// was defined here or inherited.
func (c *Controller) SkipBeforeAction(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filters = removeFilter(c.filters, name)
	c.skipped[name] = struct{}{}
}

func (c *Controller) removeOwn(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range names {
		c.filters = removeFilter(c.filters, name)
	}
}

// Filters returns the names of the filters that run before action, in order.
func (c *Controller) Filters(action string) []string {
	chain := c.chain()
	names := make([]string, 0, len(chain))
	for _, f := range chain {
		if f.options.applies(action) {
			names = append(names, f.name)
		}
	}
	return names
}

// Action registers the handler for an action.
func (c *Controller) Action(name string, h tokenauth.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions[name] = h
}

// RunFilters runs the filter chain for action, stopping at the first error.
func (c *Controller) RunFilters(ctx *tokenauth.Context, action string) error {
	for _, f := range c.chain() {
		if !f.options.applies(action) {
			continue
		}
		if err := f.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns a handler that runs the filter chain and then the action.
// Actions are looked up through the parent chain.
func (c *Controller) Handler(action string) tokenauth.Handler {
	return func(ctx *tokenauth.Context) error {
		if err := c.RunFilters(ctx, action); err != nil {
			return err
		}
		h, ok := c.lookupAction(action)
		if !ok {
			return apperr.NotFound("action not found", nil)
		}
		return h(ctx)
	}
}

func (c *Controller) lookupAction(name string) (tokenauth.Handler, bool) {
	for current := c; current != nil; current = current.parent {
		current.mu.RLock()
		h, ok := current.actions[name]
		current.mu.RUnlock()
		if ok {
			return h, true
		}
	}
	return nil, false
}

func (c *Controller) chain() []filter {
	var inherited []filter
	if c.parent != nil {
		inherited = c.parent.chain()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]filter, 0, len(inherited)+len(c.filters))
	for _, f := range inherited {
		if _, skip := c.skipped[f.name]; skip {
			continue
		}
		if hasFilter(c.filters, f.name) {
			continue
		}
		out = append(out, f)
	}
	return append(out, c.filters...)
}

func removeFilter(filters []filter, name string) []filter {
	out := filters[:0]
	for _, f := range filters {
		if f.name != name {
			out = append(out, f)
		}
	}
	return out
}

func hasFilter(filters []filter, name string) bool {
	for _, f := range filters {
		if f.name == name {
			return true
		}
	}
	return false
}
