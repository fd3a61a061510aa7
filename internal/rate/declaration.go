package rate

import (
	"net/http"
	"strings"
)

// Declaration describes how many calls a client may make to a provider.
type Declaration struct {
	provider  string
	perMinute int
	methods   map[string]bool
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

// MaxRequestsPerMinute caps guarded requests. Zero or less disables the cap.
func (d Declaration) MaxRequestsPerMinute(limit int) Declaration {
	d.perMinute = limit
	return d
}

// OnlyMethods restricts the guard to the given HTTP methods. Without it every
// request is guarded.
func (d Declaration) OnlyMethods(methods ...string) Declaration {
	d.methods = make(map[string]bool, len(methods))
	for _, m := range methods {
		d.methods[strings.ToUpper(m)] = true
	}
	return d
}

func (d Declaration) PerMinute() int {
	return d.perMinute
}

func (d Declaration) HasLimits() bool {
	return d.perMinute > 0
}

// Guards reports whether requests with method count against the budget.
func (d Declaration) Guards(method string) bool {
	if len(d.methods) == 0 {
		return true
	}
	if method == "" {
		method = http.MethodGet
	}
	return d.methods[strings.ToUpper(method)]
}
