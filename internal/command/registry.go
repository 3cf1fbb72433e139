package command

import "sort"

var registry = make(map[string]Handler)

// register adds a handler to the package-level registry at init time, the
// same init-time self-registration idiom the translator package uses,
// applied here to a flat name->Handler table since commands have no
// "from/to" axis.
func register(h Handler) {
	registry[h.Name()] = h
}

// Lookup returns the handler registered for name, or nil if none exists.
func Lookup(name string) Handler {
	return registry[name]
}

// Names returns the sorted list of registered command names, used by the
// help handler.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	register(helloHandler{})
	register(helpHandler{})
	register(setHandler{})
	register(unsetHandler{})
	register(oneoffHandler{})
	register(oneoffHandler{nameOverride: "one-off"})
	register(createFailoverRouteHandler{})
	register(deleteFailoverRouteHandler{})
	register(routeAppendHandler{prepend: false})
	register(routeAppendHandler{prepend: true, nameOverride: "route-prepend"})
	register(routeClearHandler{})
	register(routeListHandler{})
}
