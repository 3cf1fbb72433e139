// Package dispatcher resolves which backend and model serve a request,
// expands failover routes into an ordered sequence of attempts, and walks
// that sequence against the connector set and rate-limit registry.
package dispatcher

import (
	"context"
	"strings"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/connector"
	"github.com/llmproxy-dev/llmproxy/internal/ratelimit"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

// KeySource supplies the ordered set of credential names available for a
// backend; the dispatcher chooses among them, the connector never rotates
// them itself.
type KeySource interface {
	// Keys returns the ordered (name, value) credential pairs configured
	// for backend, in configuration order.
	Keys(backend string) []Credential
}

// Credential is one named API key or OAuth-bound identity for a backend.
type Credential struct {
	Name  string
	Value string
}

// Attempt is one concrete (backend, model, key) combination the dispatcher
// will try, in order.
type Attempt struct {
	Backend string
	Model   string
	KeyName string
	KeyVal  string
}

// Dispatcher resolves and drives attempts for one request.
type Dispatcher struct {
	Connectors     *connector.Set
	RateLimits     *ratelimit.Registry
	Keys           KeySource
	DefaultBackend string
}

// New constructs a Dispatcher.
func New(connectors *connector.Set, rateLimits *ratelimit.Registry, keys KeySource, defaultBackend string) *Dispatcher {
	return &Dispatcher{Connectors: connectors, RateLimits: rateLimits, Keys: keys, DefaultBackend: defaultBackend}
}

// resolveBackendModel implements a four-rule resolution order. It returns
// the chosen backend/model pair, whether the pair came
// from a one-off override (which must be cleared after the attempt), and
// whether the model name it returns is a failover-route name rather than
// a concrete model.
func (d *Dispatcher) resolveBackendModel(req *session.Request, snap *session.Snapshot) (backend, model string, oneoff bool) {
	if snap.Backend.OneoffBackend != "" && snap.Backend.OneoffModel != "" {
		return snap.Backend.OneoffBackend, snap.Backend.OneoffModel, true
	}
	if b, m, ok := splitBackendModel(req.Model); ok {
		return b, m, false
	}
	if snap.Backend.BackendType != "" && snap.Backend.Model != "" {
		return snap.Backend.BackendType, snap.Backend.Model, false
	}
	return d.DefaultBackend, req.Model, false
}

// splitBackendModel mirrors the command package's precedence: "/" is
// checked before ":" because model names may themselves contain a colon
// (e.g. "cypher-alpha:free") but never a slash.
func splitBackendModel(s string) (backend, model string, ok bool) {
	if i := strings.IndexByte(s, '/'); i != -1 {
		return s[:i], s[i+1:], true
	}
	if i := strings.IndexByte(s, ':'); i != -1 {
		return s[:i], s[i+1:], true
	}
	return "", "", false
}

// Plan resolves req against snap into an ordered attempt sequence, and the
// snapshot mutation (if any) that must be applied once the attempt that
// actually runs concludes.
func (d *Dispatcher) Plan(req *session.Request, snap *session.Snapshot) (attempts []Attempt, clearOneoff bool) {
	backend, model, oneoff := d.resolveBackendModel(req, snap)

	if route, isRoute := snap.Backend.FailoverRoutes[model]; isRoute {
		return d.expandRoute(route), oneoff
	}
	for _, cred := range d.Keys.Keys(backend) {
		attempts = append(attempts, Attempt{Backend: backend, Model: model, KeyName: cred.Name, KeyVal: cred.Value})
	}
	return attempts, oneoff
}

func (d *Dispatcher) expandRoute(route session.FailoverRoute) []Attempt {
	switch route.Policy {
	case session.PolicyModelFirst:
		return d.expandModelFirst(route.Elements)
	case session.PolicyKeyModel:
		return d.expandKeyModel(route.Elements)
	case session.PolicyModelKey:
		return d.expandModelKey(route.Elements)
	default: // session.PolicyKeyFirst and unrecognized values fall back to key-first
		return d.expandKeyFirst(route.Elements)
	}
}

// expandKeyFirst exhausts every key of an element's backend before moving
// to the next element.
func (d *Dispatcher) expandKeyFirst(elements []session.RouteElement) []Attempt {
	var attempts []Attempt
	for _, el := range elements {
		for _, cred := range d.Keys.Keys(el.Backend) {
			attempts = append(attempts, Attempt{Backend: el.Backend, Model: el.Model, KeyName: cred.Name, KeyVal: cred.Value})
		}
	}
	return attempts
}

// expandModelFirst takes one pass over the elements in order, using only
// the first configured key of each element's backend.
func (d *Dispatcher) expandModelFirst(elements []session.RouteElement) []Attempt {
	var attempts []Attempt
	for _, el := range elements {
		creds := d.Keys.Keys(el.Backend)
		if len(creds) == 0 {
			continue
		}
		attempts = append(attempts, Attempt{Backend: el.Backend, Model: el.Model, KeyName: creds[0].Name, KeyVal: creds[0].Value})
	}
	return attempts
}

// backendGroup collects the distinct models listed for one backend, in
// first-appearance order, used by the km/mk policies.
type backendGroup struct {
	backend string
	models  []string
}

func groupByBackend(elements []session.RouteElement) []backendGroup {
	var groups []backendGroup
	index := map[string]int{}
	for _, el := range elements {
		i, ok := index[el.Backend]
		if !ok {
			index[el.Backend] = len(groups)
			groups = append(groups, backendGroup{backend: el.Backend})
			i = len(groups) - 1
		}
		groups[i].models = append(groups[i].models, el.Model)
	}
	return groups
}

// expandKeyModel exhausts model variants before exhausting keys: within a
// backend, cycles through every model for the current key before
// advancing to the next key.
func (d *Dispatcher) expandKeyModel(elements []session.RouteElement) []Attempt {
	var attempts []Attempt
	for _, g := range groupByBackend(elements) {
		for _, cred := range d.Keys.Keys(g.backend) {
			for _, model := range g.models {
				attempts = append(attempts, Attempt{Backend: g.backend, Model: model, KeyName: cred.Name, KeyVal: cred.Value})
			}
		}
	}
	return attempts
}

// expandModelKey exhausts keys before moving to the next model: within a
// backend, cycles through every key for the current model before
// advancing to the next model.
func (d *Dispatcher) expandModelKey(elements []session.RouteElement) []Attempt {
	var attempts []Attempt
	for _, g := range groupByBackend(elements) {
		for _, model := range g.models {
			for _, cred := range d.Keys.Keys(g.backend) {
				attempts = append(attempts, Attempt{Backend: g.backend, Model: model, KeyName: cred.Name, KeyVal: cred.Value})
			}
		}
	}
	return attempts
}

// clearOneoffIfNeeded clears a pending one-off backend/model override
// once the attempt it was meant for concludes, whether the response is
// success or a non-retryable error.
func clearOneoffIfNeeded(snap *session.Snapshot, clear bool) *session.Snapshot {
	if !clear {
		return snap
	}
	return snap.With(func(s *session.Snapshot) {
		s.Backend.OneoffBackend = ""
		s.Backend.OneoffModel = ""
	})
}

// Dispatch walks the planned attempt sequence for a unary request,
// returning the first successful response, the possibly-updated
// snapshot, or a terminal error.
func (d *Dispatcher) Dispatch(ctx context.Context, req *session.Request, snap *session.Snapshot) (*session.Response, *session.Snapshot, *apierr.Error) {
	attempts, clearOneoff := d.Plan(req, snap)
	if len(attempts) == 0 {
		return nil, snap, apierr.AllBackendsUnavailable(d.RateLimits.Earliest())
	}

	for _, a := range attempts {
		if blocked := d.RateLimits.Get(a.Backend, a.Model, a.KeyName); blocked != nil {
			continue
		}
		conn, ok := d.Connectors.Get(a.Backend)
		if !ok {
			continue
		}
		resp, aerr := conn.ChatCompletions(ctx, req, a.Model, a.KeyVal)
		if aerr == nil {
			return resp, clearOneoffIfNeeded(snap, clearOneoff), nil
		}
		switch aerr.Kind {
		case apierr.KindRateLimited:
			d.RateLimits.Set(a.Backend, a.Model, a.KeyName, aerr.Delay)
			continue
		case apierr.KindTransient:
			continue
		default:
			return nil, clearOneoffIfNeeded(snap, clearOneoff), aerr
		}
	}
	return nil, clearOneoffIfNeeded(snap, clearOneoff), apierr.AllBackendsUnavailable(d.RateLimits.Earliest())
}

// DispatchStream walks the planned attempt sequence for a streaming
// request. Once a connector's stream has emitted its first chunk, no
// further attempt is made even if that stream later fails: there is no
// retrying across attempts once bytes have been emitted downstream.
func (d *Dispatcher) DispatchStream(ctx context.Context, req *session.Request, snap *session.Snapshot) (<-chan connector.StreamChunk, *session.Snapshot, *apierr.Error) {
	attempts, clearOneoff := d.Plan(req, snap)
	if len(attempts) == 0 {
		return nil, snap, apierr.AllBackendsUnavailable(d.RateLimits.Earliest())
	}

	for _, a := range attempts {
		if blocked := d.RateLimits.Get(a.Backend, a.Model, a.KeyName); blocked != nil {
			continue
		}
		conn, ok := d.Connectors.Get(a.Backend)
		if !ok {
			continue
		}
		ch := conn.StreamChatCompletions(ctx, req, a.Model, a.KeyVal)
		first, ok := <-ch
		if !ok {
			continue
		}
		if first.Err != nil {
			switch first.Err.Kind {
			case apierr.KindRateLimited:
				d.RateLimits.Set(a.Backend, a.Model, a.KeyName, first.Err.Delay)
				continue
			case apierr.KindTransient:
				continue
			default:
				return nil, clearOneoffIfNeeded(snap, clearOneoff), first.Err
			}
		}
		return prepend(first, ch), clearOneoffIfNeeded(snap, clearOneoff), nil
	}
	return nil, clearOneoffIfNeeded(snap, clearOneoff), apierr.AllBackendsUnavailable(d.RateLimits.Earliest())
}

// prepend re-attaches the already-consumed first chunk to the front of
// the stream so the caller sees every chunk the connector produced.
func prepend(first connector.StreamChunk, rest <-chan connector.StreamChunk) <-chan connector.StreamChunk {
	out := make(chan connector.StreamChunk)
	go func() {
		defer close(out)
		out <- first
		if first.Done {
			return
		}
		for chunk := range rest {
			out <- chunk
		}
	}()
	return out
}
