package names

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddDeduplicates(t *testing.T) {
	s := openTest(t)
	sc := Scope{Restaurant: "downtown", Template: "opening-checklist"}

	added, err := s.Add(sc, "Dana")
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.Add(sc, "Dana")
	require.NoError(t, err)
	require.False(t, added)

	got, err := s.List(sc)
	require.NoError(t, err)
	require.Equal(t, []string{"Dana"}, got)
}

func TestAddTrimsAndSkipsEmpty(t *testing.T) {
	s := openTest(t)
	sc := Scope{Restaurant: "downtown", Template: "opening-checklist"}

	added, err := s.Add(sc, "  Lee  ")
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.Add(sc, "   ")
	require.NoError(t, err)
	require.False(t, added)

	got, err := s.List(sc)
	require.NoError(t, err)
	require.Equal(t, []string{"Lee"}, got)
}

func TestScopesAreIsolated(t *testing.T) {
	s := openTest(t)
	a := Scope{Restaurant: "downtown", Template: "opening-checklist"}
	b := Scope{Restaurant: "downtown", Template: "closing-checklist"}

	_, err := s.Add(a, "Dana")
	require.NoError(t, err)

	got, err := s.List(b)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestListSorted(t *testing.T) {
	s := openTest(t)
	sc := Scope{Restaurant: "downtown", Template: "opening-checklist"}

	for _, n := range []string{"Lee", "Alex", "Dana"} {
		_, err := s.Add(sc, n)
		require.NoError(t, err)
	}

	got, err := s.List(sc)
	require.NoError(t, err)
	require.Equal(t, []string{"Alex", "Dana", "Lee"}, got)
}
