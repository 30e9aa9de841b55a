package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSourceURL(t *testing.T) {
	require.Equal(t, "https://x/c/1", NormalizeSourceURL("https://x/c/1/"))
	require.Equal(t, "https://x/c/1", NormalizeSourceURL("  https://x/c/1 "))
	require.Equal(t, NormalizeSourceURL("https://x/c/1/"), NormalizeSourceURL("https://x/c/1"))
}

func TestToggleTrailingSlash(t *testing.T) {
	require.Equal(t, "https://x/c/1/", ToggleTrailingSlash("https://x/c/1"))
	require.Equal(t, "https://x/c/1", ToggleTrailingSlash("https://x/c/1/"))
}

func TestEnsureTrailingSlash(t *testing.T) {
	require.Equal(t, "https://x/story/", EnsureTrailingSlash("https://x/story"))
	require.Equal(t, "https://x/story/", EnsureTrailingSlash("https://x/story/"))
}

func TestLastPathSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "https://truyenfull.vision/tien-nghich/", want: "tien-nghich"},
		{in: "https://truyenfull.vision/tien-nghich", want: "tien-nghich"},
		{in: "https://truyenfull.vision/tien-nghich/trang-2/", want: "trang-2"},
		{in: "tien-nghich/", want: "tien-nghich"},
		{in: "https://truyenfull.vision/", want: ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, LastPathSegment(tt.in), tt.in)
	}
}

func TestAbsoluteURL(t *testing.T) {
	base := "https://truyenfull.vision"
	require.Equal(t, "https://truyenfull.vision/img/a.jpg", AbsoluteURL(base, "/img/a.jpg"))
	require.Equal(t, "https://cdn.example/a.jpg", AbsoluteURL(base, "https://cdn.example/a.jpg"))
	require.Empty(t, AbsoluteURL(base, ""))
}
