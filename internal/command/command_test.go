package command_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/command"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

type fakeCatalog struct {
	functional map[string]map[string]bool
}

func (f fakeCatalog) IsFunctional(backend string) bool {
	_, ok := f.functional[backend]
	return ok
}

func (f fakeCatalog) HasModel(backend, model string) bool {
	models, ok := f.functional[backend]
	if !ok {
		return false
	}
	return models[model]
}

func (f fakeCatalog) Backends() []string {
	out := make([]string, 0, len(f.functional))
	for b := range f.functional {
		out = append(out, b)
	}
	return out
}

func catalog() fakeCatalog {
	return fakeCatalog{functional: map[string]map[string]bool{
		"openrouter": {"foo": true, "cypher-alpha:free": true},
	}}
}

func baseSnapshot() *session.Snapshot {
	return &session.Snapshot{
		Backend: session.BackendConfig{
			BackendType:    "openrouter",
			Model:          "default-model",
			FailoverRoutes: map[string]session.FailoverRoute{},
		},
	}
}

// P3: stripping a single command leaves every other character untouched.
func TestDetectAndStrip(t *testing.T) {
	text := "please !/hello do the thing"
	cmd, ok := command.Detect(text, command.DefaultPrefix)
	require.True(t, ok)
	require.Equal(t, "hello", cmd.Name)

	stripped := command.Strip(text, cmd)
	require.Equal(t, "please do the thing", stripped)
}

func TestParseArgsQuotingAndInts(t *testing.T) {
	args, err := command.ParseArgs(`model="openrouter:foo",temperature=0.5,thinking-budget=10,name='a,b'`)
	require.NoError(t, err)
	require.Equal(t, "openrouter:foo", args["model"].String())
	require.Equal(t, "0.5", args["temperature"].String())
	require.True(t, args["thinking-budget"].IsInt)
	require.Equal(t, int64(10), args["thinking-budget"].Int)
	require.Equal(t, "a,b", args["name"].String())
}

// S1: !/set(model=openrouter:foo) produces a confirmation and halts dispatch.
func TestSetModelHaltsDispatch(t *testing.T) {
	it := command.NewInterpreter(command.DefaultPrefix)
	req := &session.Request{Messages: []session.Message{
		{Role: session.RoleUser, Text: "!/set(model=openrouter:foo)"},
	}}
	out := it.Process(req, baseSnapshot(), catalog())

	require.True(t, out.HaltDispatch)
	require.Len(t, out.Confirmations, 1)
	require.Contains(t, out.Confirmations[0], "model set to openrouter:foo")
	require.Equal(t, "openrouter", out.Snapshot.Backend.BackendType)
	require.Equal(t, "foo", out.Snapshot.Backend.Model)
}

// S3: unknown command still halts dispatch with an "unknown command" line.
func TestUnknownCommand(t *testing.T) {
	it := command.NewInterpreter(command.DefaultPrefix)
	req := &session.Request{Messages: []session.Message{
		{Role: session.RoleUser, Text: "!/bad()"},
	}}
	out := it.Process(req, baseSnapshot(), catalog())

	require.True(t, out.HaltDispatch)
	require.Contains(t, out.Confirmations[0], "unknown command")
}

// S4: setting a non-functional backend fails and leaves backend unchanged.
func TestSetNonFunctionalBackend(t *testing.T) {
	it := command.NewInterpreter(command.DefaultPrefix)
	snap := baseSnapshot()
	req := &session.Request{Messages: []session.Message{
		{Role: session.RoleUser, Text: "!/set(backend=gemini)"},
	}}
	out := it.Process(req, snap, catalog())

	require.Contains(t, out.Confirmations[0], "backend gemini not functional")
	require.Equal(t, "openrouter", snap.Backend.BackendType, "original snapshot must stay untouched")
}

// Plain, command-free text dispatches normally.
func TestPlainTextDispatches(t *testing.T) {
	it := command.NewInterpreter(command.DefaultPrefix)
	req := &session.Request{Messages: []session.Message{
		{Role: session.RoleUser, Text: "Hello"},
	}}
	out := it.Process(req, baseSnapshot(), catalog())

	require.False(t, out.HaltDispatch)
	require.Empty(t, out.Confirmations)
	require.Equal(t, "Hello", out.Request.Messages[0].Text)
}

// P2 (session-level half): oneoff sets then a plain request should dispatch
// elsewhere; full consume-on-dispatch semantics are exercised in the
// dispatcher package, this only checks the snapshot transition.
func TestOneoffSetsOverride(t *testing.T) {
	it := command.NewInterpreter(command.DefaultPrefix)
	req := &session.Request{Messages: []session.Message{
		{Role: session.RoleUser, Text: "!/oneoff(openrouter/cypher-alpha:free)\nHello!"},
	}}
	out := it.Process(req, baseSnapshot(), catalog())

	require.Equal(t, "openrouter", out.Snapshot.Backend.OneoffBackend)
	require.Equal(t, "cypher-alpha:free", out.Snapshot.Backend.OneoffModel)
	require.False(t, out.HaltDispatch)
	require.Equal(t, "Hello!", out.Request.Messages[0].Text)
}

func TestFailoverRouteLifecycle(t *testing.T) {
	snap := baseSnapshot()
	cat := catalog()

	create := command.Lookup("create-failover-route").Execute(snap, map[string]command.Arg{
		"name": {Str: "r1"}, "policy": {Str: "k"},
	}, cat)
	require.True(t, create.Success)
	snap = create.NewSnapshot

	append1 := command.Lookup("route-append").Execute(snap, map[string]command.Arg{
		"name": {Str: "r1"}, "element": {Str: "openrouter:foo"},
	}, cat)
	require.True(t, append1.Success)
	snap = append1.NewSnapshot
	require.Len(t, snap.Backend.FailoverRoutes["r1"].Elements, 1)

	// P1: appending the same element again is idempotent.
	append2 := command.Lookup("route-append").Execute(snap, map[string]command.Arg{
		"name": {Str: "r1"}, "element": {Str: "openrouter:foo"},
	}, cat)
	require.True(t, append2.Success)
	require.Len(t, append2.NewSnapshot.Backend.FailoverRoutes["r1"].Elements, 1)

	clear := command.Lookup("route-clear").Execute(snap, map[string]command.Arg{"name": {Str: "r1"}}, cat)
	require.True(t, clear.Success)
	require.Empty(t, clear.NewSnapshot.Backend.FailoverRoutes["r1"].Elements)
}
