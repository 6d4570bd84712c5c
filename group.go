package tokenauth

import (
	"net/http"
	"strings"
)

// Group registers routes under a common prefix with shared middleware.
type Group struct {
	app        *App
	prefix     string
	middleware []Middleware
}

// Group creates a route group.
func (a *App) Group(prefix string, middleware ...Middleware) *Group {
	return &Group{app: a, prefix: cleanPrefix(prefix), middleware: middleware}
}

// Group creates a nested group inheriting g's middleware.
func (g *Group) Group(prefix string, middleware ...Middleware) *Group {
	combined := append(append([]Middleware{}, g.middleware...), middleware...)
	return &Group{app: g.app, prefix: joinPaths(g.prefix, prefix), middleware: combined}
}

// GET registers a GET route in the group.
func (g *Group) GET(path string, handler Handler, middleware ...Middleware) {
	g.Handle(http.MethodGet, path, handler, middleware...)
}

// POST registers a POST route in the group.
func (g *Group) POST(path string, handler Handler, middleware ...Middleware) {
	g.Handle(http.MethodPost, path, handler, middleware...)
}

// DELETE registers a DELETE route in the group.
func (g *Group) DELETE(path string, handler Handler, middleware ...Middleware) {
	g.Handle(http.MethodDelete, path, handler, middleware...)
}

// Handle registers a route in the group for an arbitrary method.
func (g *Group) Handle(method, path string, handler Handler, middleware ...Middleware) {
	combined := append(append([]Middleware{}, g.middleware...), middleware...)
	g.app.Handle(method, joinPaths(g.prefix, path), handler, combined...)
}

func joinPaths(base, path string) string {
	if base == "" {
		return cleanPrefix(path)
	}
	if path == "" || path == "/" {
		return cleanPrefix(base)
	}
	base, path = cleanPrefix(base), cleanPrefix(path)
	if base == "/" {
		return path
	}
	return base + path
}

func cleanPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
	}
	return prefix
}
