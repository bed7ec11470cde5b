package blob

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempScope_ReleaseRemovesFiles(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	sc, err := st.Temp("conv")
	require.NoError(t, err)

	p, n, err := sc.Write("page.jpg", strings.NewReader("data"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.True(t, sc.Owns(p))
	assert.FileExists(t, p)

	require.NoError(t, sc.Release())
	require.NoError(t, sc.Release())
	_, err = os.Stat(sc.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestSessionScope_StablePerChat(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a, err := st.Session(5)
	require.NoError(t, err)
	b, err := st.Session(5)
	require.NoError(t, err)
	assert.Equal(t, a.Dir(), b.Dir())

	p, _, err := a.Write("../../escape.png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, a.Dir(), filepath.Dir(p))

	require.NoError(t, st.ReleaseSession(5))
	assert.NoFileExists(t, p)
}

func TestScope_PathIsUnique(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	sc, err := st.Temp("x")
	require.NoError(t, err)
	defer sc.Release()

	assert.NotEqual(t, sc.Path("a.jpg"), sc.Path("a.jpg"))
	assert.False(t, sc.Owns(filepath.Join(st.Root(), "other")))
}

func TestRemoveSessionFiles_OnlyInsideSession(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	sc, err := st.Session(3)
	require.NoError(t, err)
	first, _, err := sc.Write("a.jpg", strings.NewReader("a"))
	require.NoError(t, err)
	second, _, err := sc.Write("b.jpg", strings.NewReader("b"))
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "keep.jpg")
	require.NoError(t, os.WriteFile(outside, []byte("k"), 0o644))

	require.NoError(t, st.RemoveSessionFiles(3, []string{first, outside, filepath.Join(sc.Dir(), "gone.jpg")}))
	assert.NoFileExists(t, first)
	assert.FileExists(t, second)
	assert.FileExists(t, outside)
}

func TestStaleSessions(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = st.Session(1)
	require.NoError(t, err)
	_, err = st.Session(2)
	require.NoError(t, err)
	_, err = st.Temp("conv")
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(st.SessionDir(1), old, old))

	stale, err := st.StaleSessions(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, stale)
}
