package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "nested", "shelf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)

	require.NoError(t, d.AddFavorite(ctx, "/photos"))
	require.NoError(t, d.AddFavorite(ctx, "/docs"))
	require.NoError(t, d.AddFavorite(ctx, "/photos"))

	favs, err := d.Favorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/photos", "/docs"}, favs)

	ok, err := d.IsFavorite(ctx, "/docs")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, d.RemoveFavorite(ctx, "/docs"))
	ok, err = d.IsFavorite(ctx, "/docs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenameFavoritesRewritesDescendants(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)
	for _, p := range []string{"/photos", "/photos/2024", "/photos2", "/other"} {
		require.NoError(t, d.AddFavorite(ctx, p))
	}

	require.NoError(t, d.RenameFavorites(ctx, "/photos", "/archive/photos"))
	favs, err := d.Favorites(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/archive/photos", "/archive/photos/2024", "/photos2", "/other"}, favs)

	require.NoError(t, d.RemoveFavoritesUnder(ctx, "/archive"))
	favs, err = d.Favorites(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/photos2", "/other"}, favs)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	d, err := Open(":memory:")
	require.NoError(t, err)
	defer d.Close()

	_, ok, err := d.Setting(ctx, KeySortField)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.SaveSetting(ctx, KeySortField, "size"))
	require.NoError(t, d.SaveSetting(ctx, KeySortField, "modified"))
	require.NoError(t, d.SaveSetting(ctx, KeySortDescending, "true"))

	v, ok, err := d.Setting(ctx, KeySortField)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "modified", v)

	all, err := d.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{KeySortField: "modified", KeySortDescending: "true"}, all)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, `/a\_b/%`, likePrefix("/a_b"))
	assert.Equal(t, "/%", likePrefix("/"))
}
