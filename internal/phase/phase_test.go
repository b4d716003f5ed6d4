package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertOrdered checks that want appears in got in the given relative order.
func assertOrdered(t *testing.T, got, want []string) {
	t.Helper()
	last := -1
	for _, name := range want {
		ix := indexFrom(got, name, 0)
		require.GreaterOrEqual(t, ix, 0, "phase %q missing from %v", name, got)
		assert.Greater(t, ix, last, "phase %q out of order in %v", name, got)
		last = ix
	}
}

func TestNew_DefaultOrder(t *testing.T) {
	r := New()
	assert.Equal(t, []string{"initial", "session", "auth", "parse", "routes", "files", "final"}, r.Names())
}

func TestPhaseConstants_ParseWithPosition(t *testing.T) {
	assert.Equal(t, []string{Initial, Session, Auth, ParsePhase, Routes, Files, Final}, DefaultPhases)

	name, pos, err := Parse(ParsePhase + Separator + "after")
	require.NoError(t, err)
	assert.Equal(t, "parse", name)
	assert.Equal(t, After, pos)

	rank, err := New().Rank(ParsePhase, Before)
	require.NoError(t, err)
	authRank, err := New().Rank(Auth, After)
	require.NoError(t, err)
	assert.Negative(t, authRank.Compare(rank))
}

func TestNewWithPhases_AppendsRoutes(t *testing.T) {
	r, err := NewWithPhases("a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "routes"}, r.Names())

	_, err = NewWithPhases("a", "a")
	assert.ErrorIs(t, err, ErrDuplicatePhase)
}

func TestAdd_InsertsBeforeRoutes(t *testing.T) {
	r := New()
	require.NoError(t, r.Add("custom"))
	assertOrdered(t, r.Names(), []string{"parse", "custom", "routes"})

	// adding again does not move it
	require.NoError(t, r.Add("custom"))
	assert.Len(t, r.Names(), len(DefaultPhases)+1)
}

func TestAdd_RejectsInvalidNames(t *testing.T) {
	r := New()
	assert.ErrorIs(t, r.Add(""), ErrInvalidPhaseName)
	assert.ErrorIs(t, r.Add("routes:before"), ErrInvalidPhaseName)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name  string
		merge []string
		want  []string
	}{
		{
			name:  "adds to the start of the list",
			merge: []string{"first", "routes", "subapps"},
			want:  []string{"first", "initial", "routes", "subapps", "files"},
		},
		{
			name: "preserves the existing order",
			merge: []string{
				"initial", "postinit", "preauth", "auth", "routes", "subapps", "final", "last",
			},
			want: []string{
				"initial", "postinit", "preauth", "session", "auth", "parse",
				"routes", "subapps", "files", "final", "last",
			},
		},
		{
			name:  "is idempotent for a consistent order",
			merge: []string{"initial", "auth", "routes", "final"},
			want:  DefaultPhases,
		},
		{
			name:  "empty list",
			merge: nil,
			want:  DefaultPhases,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			require.NoError(t, r.Merge(tt.merge))
			got := r.Names()
			assertOrdered(t, got, tt.want)
			for _, name := range DefaultPhases {
				assert.Contains(t, got, name, "merge must never drop a phase")
			}
		})
	}
}

func TestMerge_PreservesExactResult(t *testing.T) {
	r := New()
	require.NoError(t, r.Merge([]string{"initial", "postinit", "preauth", "auth", "routes", "subapps", "final", "last"}))
	assert.Equal(t, []string{
		"initial", "postinit", "preauth", "session", "auth", "parse",
		"routes", "subapps", "files", "final", "last",
	}, r.Names())
}

func TestMerge_OrderingConflict(t *testing.T) {
	r := New()
	require.NoError(t, r.Merge([]string{"first", "second"}))
	before := r.Names()

	err := r.Merge([]string{"second", "first"})
	require.Error(t, err)
	assert.Regexp(t, `ordering conflict.*first.*second`, err.Error())

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "first", conflict.Phase)
	assert.Equal(t, "second", conflict.After)

	assert.Equal(t, before, r.Names(), "registry must be untouched on conflict")
}

func TestMerge_ConflictWithDefaults(t *testing.T) {
	r := New()
	err := r.Merge([]string{"final", "initial"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "initial", conflict.Phase)
	assert.Equal(t, "final", conflict.After)
}

func TestMerge_RejectsDuplicates(t *testing.T) {
	r := New()
	assert.ErrorIs(t, r.Merge([]string{"a", "b", "a"}), ErrDuplicatePhase)
	assert.Equal(t, DefaultPhases, r.Names())
}
