package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/llmproxy-dev/llmproxy/internal/session"
)

// --- hello -----------------------------------------------------------------

type helloHandler struct{}

func (helloHandler) Name() string { return "hello" }

func (helloHandler) Execute(snap *session.Snapshot, _ map[string]Arg, _ Catalog) Result {
	next := snap.With(func(s *session.Snapshot) {
		s.HelloRequested = true
	})
	return Result{Success: true, Message: "hello acknowledged", NewSnapshot: next}
}

// --- help --------------------------------------------------------------

type helpHandler struct{}

func (helpHandler) Name() string { return "help" }

func (helpHandler) Execute(_ *session.Snapshot, args map[string]Arg, _ Catalog) Result {
	if cmd, ok := args["cmd"]; ok {
		if Lookup(cmd.String()) == nil {
			return Result{Success: false, Message: fmt.Sprintf("help: unknown command %q", cmd.String())}
		}
		return Result{Success: true, Message: "help for " + cmd.String()}
	}
	return Result{Success: true, Message: "available commands: " + strings.Join(Names(), ", ")}
}

// --- set -----------------------------------------------------------------

type setHandler struct{}

func (setHandler) Name() string { return "set" }

func (setHandler) Execute(snap *session.Snapshot, args map[string]Arg, cat Catalog) Result {
	next := snap.clone()
	var applied []string

	for key, arg := range args {
		if err := applySetField(next, key, arg, cat); err != nil {
			// Unknown model / invalid value fails the entire command; no
			// partial writes.
			return Result{Success: false, Message: "set: " + err.Error()}
		}
		applied = append(applied, key)
	}
	sort.Strings(applied)
	if len(applied) == 0 {
		return Result{Success: false, Message: "set: no arguments given"}
	}

	msgs := make([]string, 0, len(applied))
	for _, k := range applied {
		msgs = append(msgs, fmt.Sprintf("%s set to %s", k, args[k].String()))
	}
	return Result{Success: true, Message: strings.Join(msgs, "; "), NewSnapshot: next}
}

func applySetField(next *session.Snapshot, key string, arg Arg, cat Catalog) error {
	switch key {
	case "model":
		backend, model, hasBackend := splitBackendModel(arg.String())
		if hasBackend {
			if cat != nil && !cat.IsFunctional(backend) {
				return fmt.Errorf("backend %s not functional", backend)
			}
			if cat != nil && !cat.HasModel(backend, model) {
				return fmt.Errorf("unknown model %s", arg.String())
			}
			next.Backend.BackendType = backend
			next.Backend.Model = model
		} else {
			if cat != nil && !cat.HasModel(next.Backend.BackendType, model) {
				return fmt.Errorf("unknown model %s", model)
			}
			next.Backend.Model = model
		}
	case "backend":
		if cat != nil && !cat.IsFunctional(arg.String()) {
			return fmt.Errorf("backend %s not functional", arg.String())
		}
		next.Backend.BackendType = arg.String()
	case "project":
		next.Project = arg.String()
	case "project-dir":
		next.ProjectDir = arg.String()
	case "interactive-mode":
		on, err := parseOnOff(arg.String())
		if err != nil {
			return err
		}
		next.Backend.InteractiveMode = on
		if on {
			next.InteractiveJustEnabled = true
		}
	case "temperature":
		v, err := parseFloatArg(arg)
		if err != nil {
			return fmt.Errorf("invalid temperature %q", arg.String())
		}
		next.Reasoning.Temperature = &v
	case "reasoning-effort":
		eff := session.ReasoningEffort(arg.String())
		switch eff {
		case session.EffortLow, session.EffortMedium, session.EffortHigh:
			next.Reasoning.ReasoningEffort = eff
		default:
			return fmt.Errorf("invalid reasoning-effort %q", arg.String())
		}
	case "thinking-budget":
		if !arg.IsInt {
			return fmt.Errorf("invalid thinking-budget %q", arg.String())
		}
		v := int(arg.Int)
		next.Reasoning.ThinkingBudget = &v
	case "redact-keys":
		on, err := parseOnOff(arg.String())
		if err != nil {
			return err
		}
		next.APIKeyRedactionOverride = &on
	default:
		return fmt.Errorf("unknown field %q", key)
	}
	return nil
}

func parseOnOff(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected on|off, got %q", v)
	}
}

func parseFloatArg(arg Arg) (float64, error) {
	if arg.IsInt {
		return float64(arg.Int), nil
	}
	return strconv.ParseFloat(arg.Str, 64)
}

// splitBackendModel splits "<backend>:<model>" or "<backend>/<model>" and
// reports whether a backend prefix was present.
func splitBackendModel(s string) (backend, model string, hasBackend bool) {
	// "/" is preferred over ":" because a model name may itself contain a
	// colon (e.g. "cypher-alpha:free"), whereas "/" never appears as part
	// of a bare model name in this system.
	if i := strings.IndexByte(s, '/'); i != -1 {
		return s[:i], s[i+1:], true
	}
	if i := strings.IndexByte(s, ':'); i != -1 {
		return s[:i], s[i+1:], true
	}
	return "", s, false
}

// --- unset -----------------------------------------------------------------

type unsetHandler struct{}

func (unsetHandler) Name() string { return "unset" }

func (unsetHandler) Execute(snap *session.Snapshot, args map[string]Arg, _ Catalog) Result {
	keysArg, ok := args["keys"]
	if !ok {
		// Support the bare positional form "unset(model,project)" by
		// treating every arg key as a key to clear when no explicit
		// "keys=" was supplied.
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		return unsetKeys(snap, keys)
	}
	keys := strings.Split(keysArg.String(), ",")
	return unsetKeys(snap, keys)
}

func unsetKeys(snap *session.Snapshot, keys []string) Result {
	next := snap.clone()
	var cleared []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		switch k {
		case "model":
			next.Backend.Model = ""
		case "backend":
			next.Backend.BackendType = ""
		case "project":
			next.Project = ""
		case "project-dir":
			next.ProjectDir = ""
		case "temperature":
			next.Reasoning.Temperature = nil
		case "reasoning-effort":
			next.Reasoning.ReasoningEffort = ""
		case "thinking-budget":
			next.Reasoning.ThinkingBudget = nil
		case "redact-keys":
			next.APIKeyRedactionOverride = nil
		default:
			continue
		}
		cleared = append(cleared, k)
	}
	sort.Strings(cleared)
	return Result{Success: true, Message: "cleared: " + strings.Join(cleared, ", "), NewSnapshot: next}
}

// --- oneoff / one-off --------------------------------------------------

type oneoffHandler struct {
	nameOverride string
}

func (h oneoffHandler) Name() string {
	if h.nameOverride != "" {
		return h.nameOverride
	}
	return "oneoff"
}

func (h oneoffHandler) Execute(snap *session.Snapshot, args map[string]Arg, cat Catalog) Result {
	target := ""
	for _, arg := range args {
		if arg.Str != "" {
			target = arg.Str
		}
	}
	if target == "" {
		for k := range args {
			target = k
			break
		}
	}
	backend, model, hasBackend := splitBackendModel(target)
	if !hasBackend {
		return Result{Success: false, Message: h.Name() + ": expected <backend>/<model> or <backend>:<model>"}
	}
	if cat != nil && !cat.IsFunctional(backend) {
		return Result{Success: false, Message: fmt.Sprintf("%s: backend %s not functional", h.Name(), backend)}
	}
	if cat != nil && !cat.HasModel(backend, model) {
		return Result{Success: false, Message: fmt.Sprintf("%s: unknown model %s", h.Name(), target)}
	}

	next := snap.With(func(s *session.Snapshot) {
		s.Backend.OneoffBackend = backend
		s.Backend.OneoffModel = model
	})
	return Result{Success: true, Message: fmt.Sprintf("one-off route set to %s:%s", backend, model), NewSnapshot: next}
}

// --- failover route management -----------------------------------------

type createFailoverRouteHandler struct{}

func (createFailoverRouteHandler) Name() string { return "create-failover-route" }

func (createFailoverRouteHandler) Execute(snap *session.Snapshot, args map[string]Arg, _ Catalog) Result {
	name := args["name"].String()
	if name == "" {
		return Result{Success: false, Message: "create-failover-route: name is required"}
	}
	policy := session.RoutePolicy(strings.ToLower(args["policy"].String()))
	switch policy {
	case session.PolicyKeyFirst, session.PolicyModelFirst, session.PolicyKeyModel, session.PolicyModelKey:
	default:
		return Result{Success: false, Message: fmt.Sprintf("create-failover-route: invalid policy %q", args["policy"].String())}
	}

	if existing, ok := snap.Backend.FailoverRoutes[name]; ok && existing.Policy == policy {
		// P1 idempotence: creating the same route twice with the same
		// policy is a no-op, not an error.
		return Result{Success: true, Message: fmt.Sprintf("route %s already exists", name), NewSnapshot: snap}
	}

	next := snap.With(func(s *session.Snapshot) {
		s.Backend.FailoverRoutes[name] = session.FailoverRoute{Policy: policy}
	})
	return Result{Success: true, Message: fmt.Sprintf("route %s created (policy=%s)", name, policy), NewSnapshot: next}
}

type deleteFailoverRouteHandler struct{}

func (deleteFailoverRouteHandler) Name() string { return "delete-failover-route" }

func (deleteFailoverRouteHandler) Execute(snap *session.Snapshot, args map[string]Arg, _ Catalog) Result {
	name := args["name"].String()
	if _, ok := snap.Backend.FailoverRoutes[name]; !ok {
		return Result{Success: true, Message: fmt.Sprintf("route %s does not exist", name), NewSnapshot: snap}
	}
	next := snap.With(func(s *session.Snapshot) {
		delete(s.Backend.FailoverRoutes, name)
	})
	return Result{Success: true, Message: fmt.Sprintf("route %s deleted", name), NewSnapshot: next}
}

type routeAppendHandler struct {
	prepend      bool
	nameOverride string
}

func (h routeAppendHandler) Name() string {
	if h.nameOverride != "" {
		return h.nameOverride
	}
	return "route-append"
}

func (h routeAppendHandler) Execute(snap *session.Snapshot, args map[string]Arg, cat Catalog) Result {
	name := args["name"].String()
	route, ok := snap.Backend.FailoverRoutes[name]
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("%s: route %s does not exist", h.Name(), name)}
	}
	elementStr := args["element"].String()
	backend, model, hasBackend := splitBackendModel(elementStr)
	if !hasBackend {
		return Result{Success: false, Message: fmt.Sprintf("%s: element must be <backend>:<model>", h.Name())}
	}
	if cat != nil && (!cat.IsFunctional(backend) || !cat.HasModel(backend, model)) {
		return Result{Success: false, Message: fmt.Sprintf("%s: %s is not a valid functional backend:model", h.Name(), elementStr)}
	}

	elem := session.RouteElement{Backend: backend, Model: model}
	for _, e := range route.Elements {
		if e == elem {
			// Idempotent when the element is already present.
			return Result{Success: true, Message: fmt.Sprintf("%s already in route %s", elementStr, name), NewSnapshot: snap}
		}
	}

	next := snap.With(func(s *session.Snapshot) {
		r := s.Backend.FailoverRoutes[name]
		if h.prepend {
			r.Elements = append([]session.RouteElement{elem}, r.Elements...)
		} else {
			r.Elements = append(r.Elements, elem)
		}
		s.Backend.FailoverRoutes[name] = r
	})
	verb := "appended to"
	if h.prepend {
		verb = "prepended to"
	}
	return Result{Success: true, Message: fmt.Sprintf("%s %s route %s", elementStr, verb, name), NewSnapshot: next}
}

type routeClearHandler struct{}

func (routeClearHandler) Name() string { return "route-clear" }

func (routeClearHandler) Execute(snap *session.Snapshot, args map[string]Arg, _ Catalog) Result {
	name := args["name"].String()
	if _, ok := snap.Backend.FailoverRoutes[name]; !ok {
		return Result{Success: false, Message: fmt.Sprintf("route-clear: route %s does not exist", name)}
	}
	next := snap.With(func(s *session.Snapshot) {
		r := s.Backend.FailoverRoutes[name]
		r.Elements = nil
		s.Backend.FailoverRoutes[name] = r
	})
	return Result{Success: true, Message: fmt.Sprintf("route %s cleared", name), NewSnapshot: next}
}

type routeListHandler struct{}

func (routeListHandler) Name() string { return "route-list" }

func (routeListHandler) Execute(snap *session.Snapshot, args map[string]Arg, _ Catalog) Result {
	name := args["name"].String()
	route, ok := snap.Backend.FailoverRoutes[name]
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("route-list: route %s does not exist", name)}
	}
	parts := make([]string, 0, len(route.Elements))
	for _, e := range route.Elements {
		parts = append(parts, e.Backend+":"+e.Model)
	}
	return Result{Success: true, Message: fmt.Sprintf("%s (%s): %s", name, route.Policy, strings.Join(parts, ", "))}
}
