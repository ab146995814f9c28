package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/puppets/internal/runtime/dispatch"
	perrors "github.com/drblury/puppets/internal/runtime/errors"
	"github.com/drblury/puppets/internal/runtime/logging"
)

type recordingLogger struct {
	logging.ServiceLogger
	warnings []error
	fields   []logging.LogFields
}

func (r *recordingLogger) Warn(msg string, err error, fields logging.LogFields) {
	r.warnings = append(r.warnings, err)
	r.fields = append(r.fields, fields)
}

func constant(v any) dispatch.Handler {
	return func(args ...any) any { return v }
}

func TestNormalizeResolvesNamesAndFunctions(t *testing.T) {
	table := Table{"onStart": constant("named")}
	hash := Hash{
		"start": Named("onStart"),
		"ready": Func(constant("inline")),
	}

	out := Normalize(hash, table, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "named", out["start"]())
	assert.Equal(t, "inline", out["ready"]())
}

func TestNormalizeDropsUnresolvedWithWarning(t *testing.T) {
	log := &recordingLogger{}
	hash := Hash{
		"close":  Named("missing"),
		"open":   Named("present"),
		"broken": Ref{},
	}

	out := Normalize(hash, Table{"present": constant(1)}, log)

	assert.Len(t, out, 1)
	assert.Contains(t, out, "open")
	require.Len(t, log.warnings, 2)
	for _, err := range log.warnings {
		assert.ErrorIs(t, err, perrors.ErrUnresolvedHandler)
	}
}

func TestNormalizeWithoutResolver(t *testing.T) {
	out := Normalize(Hash{"a": Named("x"), "b": Func(constant(2))}, nil, nil)
	assert.Len(t, out, 1)
	assert.Contains(t, out, "b")
}

func TestChainPrefersEarlierResolvers(t *testing.T) {
	chain := Chain{nil, Table{"a": constant("first")}, Table{"a": constant("second"), "b": constant("b")}}

	fn, ok := chain.Action("a")
	require.True(t, ok)
	assert.Equal(t, "first", fn())

	_, ok = chain.Action("b")
	assert.True(t, ok)
	_, ok = chain.Action("c")
	assert.False(t, ok)
}

func TestTableIgnoresNilEntries(t *testing.T) {
	_, ok := Table{"a": nil}.Action("a")
	assert.False(t, ok)
}

func TestHashHelpers(t *testing.T) {
	base := Hash{"start": Named("a"), "stop": Named("b")}
	merged := base.Merge(Hash{"stop": Named("c")})

	assert.Equal(t, "b", base["stop"].Name())
	assert.Equal(t, "c", merged["stop"].Name())

	suffixed := base.Suffixed("puppets.nav")
	assert.Equal(t, []string{"start:puppets.nav", "stop:puppets.nav"}, suffixed.Keys())
}

func TestGroupHelpers(t *testing.T) {
	g := Group{
		Vent:     Hash{"open": Named("opened")},
		Commands: Hash{"start": Named("start")},
	}
	clone := g.Clone()
	clone.Vent["extra"] = Named("x")
	assert.Len(t, g.Vent, 1)

	suffixed := g.Suffixed("puppets.a")
	assert.Contains(t, suffixed.Commands, "start:puppets.a")
	assert.Empty(t, suffixed.Reqres)

	assert.True(t, Group{}.Empty())
	assert.False(t, g.Empty())

	norm := NormalizeGroup(g.Merge(Group{Reqres: Hash{"isReady": Func(constant(true))}}),
		Table{"opened": constant(nil), "start": constant(nil)}, nil)
	assert.Len(t, norm.Vent, 1)
	assert.Len(t, norm.Commands, 1)
	assert.Len(t, norm.Reqres, 1)
}

func TestRefAccessors(t *testing.T) {
	assert.True(t, Func(constant(1)).IsFunc())
	assert.False(t, Named("x").IsFunc())
	assert.Equal(t, "x", Named("x").Name())
}
