package addressbar

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Deterministic(t *testing.T) {
	t.Parallel()

	first := Render("https://blog.naver.com/someone/223344")
	second := Render("https://blog.naver.com/someone/223344")
	require.Equal(t, first, second)
}

func TestRender_SplitsHostAndPath(t *testing.T) {
	t.Parallel()

	out := Render("https://blog.naver.com/someone/223344?from=sheet")

	assert.Contains(t, out, ">blog.naver.com<")
	assert.Contains(t, out, "/someone/223344?from=sheet")
	assert.Contains(t, out, "&#128274;", "https should render the lock glyph")
	assert.Contains(t, out, "height:40px")
	assert.Contains(t, out, "height:44px")
}

func TestRender_PlainHTTPHasNoLock(t *testing.T) {
	t.Parallel()

	out := Render("http://example.com/")
	assert.NotContains(t, out, "&#128274;")
	assert.Contains(t, out, ">example.com<")
}

func TestRender_UnparseableFallsBackToRaw(t *testing.T) {
	t.Parallel()

	raw := "::not a url <b>"
	out := Render(raw)

	require.NotEmpty(t, out)
	assert.Contains(t, out, "::not a url &lt;b&gt;")
	assert.NotContains(t, out, "<b>")
}

func TestCompose_StacksChromeOverRaster(t *testing.T) {
	t.Parallel()

	raster := []byte{0x89, 'P', 'N', 'G'}
	doc := Compose("https://example.com/post", raster, 350)

	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "height:434px")
	assert.Contains(t, doc, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(raster))
	assert.Contains(t, doc, `height="350"`)
	assert.Less(t, strings.Index(doc, "bs-chrome"), strings.Index(doc, "<img"))
}

func TestCompositeHeight(t *testing.T) {
	t.Parallel()

	require.Equal(t, 84, Height)
	require.Equal(t, 484, CompositeHeight(400))
}
