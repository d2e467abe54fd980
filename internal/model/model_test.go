package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFolderVariants(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"isDir", `{"path":"/trip","isDir":true,"size":4096}`},
		{"is_dir", `{"path":"/trip","is_dir":true}`},
		{"type folder", `{"path":"/trip","type":"folder"}`},
		{"kind directory", `{"path":"/trip","kind":"directory"}`},
	}
	for _, tc := range testCases {
		var raw RawItem
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &raw), tc.name)
		it, err := Normalize(raw, "/")
		require.NoError(t, err, tc.name)
		assert.Equal(t, KindFolder, it.Kind, tc.name)
		assert.Zero(t, it.Size, "%s: folder size is meaningless", tc.name)
		assert.Equal(t, "/trip", it.ID, "%s: id falls back to path", tc.name)
		assert.Equal(t, "trip", it.Name, tc.name)
	}
}

func TestNormalizeKindFromExtension(t *testing.T) {
	it, err := Normalize(RawItem{ID: "42", Name: "beach.JPG", Size: 10, Type: "file"}, "/photos")
	require.NoError(t, err)
	assert.Equal(t, KindImage, it.Kind)
	assert.Equal(t, "/photos/beach.JPG", it.Path)
	assert.Equal(t, "42", it.ID)
	assert.EqualValues(t, 10, it.Size)
}

func TestNormalizeTimestamps(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		raw  string
	}{
		{"epoch seconds", `{"path":"/a","modifiedTime":1709294400}`},
		{"epoch millis", `{"path":"/a","modified":1709294400000}`},
		{"epoch string", `{"path":"/a","mtime":"1709294400"}`},
		{"rfc3339", `{"path":"/a","modifiedAt":"2024-03-01T12:00:00Z"}`},
		{"offset", `{"path":"/a","modifiedAt":"2024-03-01T13:00:00+01:00"}`},
		{"naive", `{"path":"/a","modified":"2024-03-01 12:00:00"}`},
	}
	for _, tc := range testCases {
		var raw RawItem
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &raw), tc.name)
		it, err := Normalize(raw, "/")
		require.NoError(t, err, tc.name)
		assert.True(t, want.Equal(it.ModifiedAt), "%s: got %v", tc.name, it.ModifiedAt)
		assert.Equal(t, time.UTC, it.ModifiedAt.Location(), tc.name)
	}
}

func TestNormalizePrefersFirstTimestampAlias(t *testing.T) {
	var raw RawItem
	require.NoError(t, json.Unmarshal([]byte(`{"path":"/a","modifiedAt":null,"modifiedTime":"2020-01-01","created":86400}`), &raw))
	it, err := Normalize(raw, "/")
	require.NoError(t, err)
	assert.Equal(t, 2020, it.ModifiedAt.Year())
	assert.Equal(t, time.Unix(86400, 0).UTC(), it.CreatedAt)
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	_, err := Normalize(RawItem{}, "/")
	assert.ErrorIs(t, err, ErrNoPath)

	var raw RawItem
	require.NoError(t, json.Unmarshal([]byte(`{"path":"/a","modified":"last tuesday"}`), &raw))
	_, err = Normalize(raw, "/")
	assert.Error(t, err)
}

func TestNormalizeAllDropsDuplicateIDs(t *testing.T) {
	items, err := NormalizeAll([]RawItem{
		{ID: "1", Path: "/a"},
		{ID: "2", Path: "/b"},
		{ID: "1", Path: "/c"},
	}, "/")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/a", items[0].Path)
	assert.Equal(t, "/b", items[1].Path)
}

func TestTagsAreDeduped(t *testing.T) {
	it, err := Normalize(RawItem{Path: "/a", Tags: []string{"Beach", "beach", " ", "sun"}}, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Beach", "sun"}, it.Tags)
	assert.True(t, it.HasTag("BEACH"))
	assert.False(t, it.HasTag("snow"))
}

func TestCloneDoesNotShareTags(t *testing.T) {
	a := Item{ID: "1", Tags: []string{"x"}}
	b := a.Clone()
	b.Tags[0] = "y"
	assert.Equal(t, "x", a.Tags[0])
}
