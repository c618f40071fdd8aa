package inliner

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"webinliner/internal/config"
)

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")

const page = `<!DOCTYPE html>
<html>
<head>
<link rel="icon" href="favicon.gif">
<link rel="stylesheet" href="style.css">
<script src="app.js"></script>
</head>
<body>
<img src="logo.gif">
<img src="missing.gif">
</body>
</html>`

func serve(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/site/style.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte(`body{background:url("logo.gif")}`))
	})
	mux.HandleFunc("/site/app.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = w.Write([]byte(`document.title = "x";`))
	})
	gif := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write(gifBytes)
	}
	mux.HandleFunc("/site/logo.gif", gif)
	mux.HandleFunc("/site/favicon.gif", gif)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestInlineOverHTTP(t *testing.T) {
	srv := serve(t)
	base, err := url.Parse(srv.URL + "/site/")
	require.NoError(t, err)

	result, err := New(config.Default(), zaptest.NewLogger(t)).Inline(context.Background(), page, base)
	require.NoError(t, err)

	uri := "data:image/gif;base64," + base64.StdEncoding.EncodeToString(gifBytes)
	out := result.HTML

	assert.Contains(t, out, `<link rel="icon" href="`+uri+`"/>`)
	assert.Contains(t, out, `<style type="text/css">body{background:url(`+uri+`)}</style>`)
	assert.Contains(t, out, `<script>document.title = "x";</script>`)
	assert.Contains(t, out, `<img src="`+uri+`"/>`)
	assert.Contains(t, out, `<img src="missing.gif"/>`)
	assert.Contains(t, out, `<base href="`+base.String()+`"/></head>`)

	require.Len(t, result.Unresolved, 1)
	assert.Equal(t, Unresolved{Handler: "image", Node: `<img src="missing.gif" />`, Ref: "missing.gif"}, result.Unresolved[0])

	// head, favicon, stylesheet, script, two images
	assert.Equal(t, 6, result.ProcessingStats.NodesMatched)
	// base, favicon, stylesheet, script, one image
	assert.Equal(t, 5, result.ProcessingStats.PatchesApplied)
}

func TestInlineFromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.gif"), gifBytes, 0o644))

	base := config.Base(&url.URL{Scheme: "file", Path: filepath.ToSlash(dir) + "/index.html"}, dir)

	out, err := New(config.Default(), zaptest.NewLogger(t)).InlineString(context.Background(),
		`<p><img src="logo.gif"></p>`, base)
	require.NoError(t, err)

	assert.Contains(t, out, "data:image/gif;base64,")
	assert.NotContains(t, out, "<base")
}

func TestDisabledKindsAreLeftAlone(t *testing.T) {
	srv := serve(t)
	base, err := url.Parse(srv.URL + "/site/")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.NoJS = true
	cfg.NoCSS = true
	cfg.NoImg = true
	i := New(cfg, zaptest.NewLogger(t))

	names := make([]string, 0, len(i.Handlers()))
	for _, h := range i.Handlers() {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"base", "favicon"}, names)

	result, err := i.Inline(context.Background(), page, base)
	require.NoError(t, err)

	assert.Contains(t, result.HTML, `<link rel="stylesheet" href="style.css"/>`)
	assert.Contains(t, result.HTML, `<script src="app.js"></script>`)
	assert.Contains(t, result.HTML, `<img src="logo.gif"/>`)
	assert.NotContains(t, result.HTML, `href="favicon.gif"`)
	assert.Empty(t, result.Unresolved)
}

func TestInlineReader(t *testing.T) {
	var buf bytes.Buffer
	result, err := NewWithDefaults().InlineReader(context.Background(),
		strings.NewReader(`<p>hi</p>`), &buf, &url.URL{Scheme: "file", Path: "/"})
	require.NoError(t, err)

	assert.Equal(t, result.HTML, buf.String())
	assert.Equal(t, "<html><head></head><body><p>hi</p></body></html>", buf.String())
}

func TestProcessingStatsString(t *testing.T) {
	s := ProcessingStats{NodesMatched: 3, PatchesApplied: 2, ProcessingTimeMs: 7}
	assert.Equal(t, "matched 3 nodes, applied 2 patches in 7ms", s.String())
}
