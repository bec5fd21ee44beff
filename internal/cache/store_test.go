package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type entry struct {
	ID   int
	Name string
}

func TestStore_GetExistingValue(t *testing.T) {
	s := New("test", NoExpiration, nil)
	s.Set("tree", entry{ID: 1, Name: "main"})

	got, ok := Get[entry](s, "tree")
	require.True(t, ok)
	require.Equal(t, entry{ID: 1, Name: "main"}, got)
}

func TestStore_GetMissing(t *testing.T) {
	s := New("test", NoExpiration, nil)

	got, ok := Get[string](s, "missing")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestStore_GetWrongType(t *testing.T) {
	s := New("test", NoExpiration, nil)
	s.Set("names/roblox", 123)

	got, ok := Get[[]string](s, "names/roblox")
	require.False(t, ok)
	require.Nil(t, got)
}

func TestStore_DeleteAndFlush(t *testing.T) {
	s := New("test", NoExpiration, nil)
	s.Set("a", "1")
	s.Set("b", "2")
	s.Set("c", "3")
	require.Equal(t, 3, s.Len())

	s.Delete("a", "b")
	require.Equal(t, 1, s.Len())

	s.Flush()
	require.Zero(t, s.Len())
	_, ok := Get[string](s, "c")
	require.False(t, ok)
}

func TestStore_TTL(t *testing.T) {
	s := New("test", 20*time.Millisecond, nil)
	s.Set("k", "v")

	_, ok := Get[string](s, "k")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := Get[string](s, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestStore_SetUntil(t *testing.T) {
	s := New("test", time.Hour, nil)
	s.Set("tree", "t")

	deadline, ok := s.Expiration("tree")
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Minute)

	s.SetUntil("config", "c", deadline)
	got, ok := s.Expiration("config")
	require.True(t, ok)
	require.WithinDuration(t, deadline, got, 10*time.Millisecond)

	s.SetUntil("past", "p", time.Now().Add(-time.Second))
	_, ok = Get[string](s, "past")
	require.False(t, ok)

	_, ok = s.Expiration("missing")
	require.False(t, ok)
}

func TestStore_SetUntilNoExpiration(t *testing.T) {
	s := New("test", NoExpiration, nil)
	s.Set("tree", "t")

	deadline, ok := s.Expiration("tree")
	require.True(t, ok)
	require.True(t, deadline.IsZero())

	s.SetUntil("config", "c", deadline)
	_, ok = Get[string](s, "config")
	require.True(t, ok)
}
