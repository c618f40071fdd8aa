package dispatch

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"webinliner/internal/css"
	"webinliner/internal/datauri"
	"webinliner/internal/handler"
	"webinliner/internal/html"
	"webinliner/internal/loader"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d}

func newEnv(base *url.URL, threads int) *handler.Env {
	l := loader.New(base)
	enc := datauri.New(l)
	return &handler.Env{
		Base:    base,
		Loader:  l,
		Encoder: enc,
		CSS:     css.NewRewriter(l, enc, threads),
	}
}

func siteDir(t *testing.T, files map[string][]byte) *url.URL {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(dir) + "/"}
}

func process(t *testing.T, threads int, env *handler.Env, handlers []handler.Handler, src string) (string, Stats) {
	t.Helper()
	doc, err := html.NewParser().Parse(src)
	require.NoError(t, err)

	stats, err := New(threads, zaptest.NewLogger(t)).Run(context.Background(), doc, env, handlers)
	require.NoError(t, err)

	out, err := doc.HTML()
	require.NoError(t, err)
	return out, stats
}

func TestImageBecomesDataURI(t *testing.T) {
	base := siteDir(t, map[string][]byte{"a.png": pngBytes})
	out, stats := process(t, 4, newEnv(base, 4), handler.Table(handler.All),
		`<html><head></head><body><img src="a.png"></body></html>`)

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	assert.Contains(t, out, `<img src="`+want+`"/>`)
	assert.Equal(t, 2, stats.Matched) // head and img
	assert.Equal(t, 1, stats.Applied)
}

func TestMissingFaviconUnchanged(t *testing.T) {
	base := siteDir(t, nil)
	src := `<html><head><link rel="icon" href="missing.ico"/></head><body></body></html>`
	out, stats := process(t, 4, newEnv(base, 4), handler.Table(handler.All), src)

	assert.Equal(t, src, out)
	assert.Zero(t, stats.Applied)
}

func TestScriptInlined(t *testing.T) {
	base := siteDir(t, map[string][]byte{"app.js": []byte("console.log('hi');")})
	out, _ := process(t, 4, newEnv(base, 4), handler.Table(handler.All),
		`<html><head><script src="app.js"></script></head><body></body></html>`)

	assert.Contains(t, out, `<script>console.log('hi');</script>`)
	assert.NotContains(t, out, `src="app.js"`)
}

func TestStylesheetWithImportsAndImages(t *testing.T) {
	base := siteDir(t, map[string][]byte{
		"main.css":  []byte(`@import "print.css" print; body{background:url(bg.png)}`),
		"print.css": []byte(`h1{color:black}`),
		"bg.png":    pngBytes,
	})
	out, _ := process(t, 8, newEnv(base, 8), handler.Table(handler.All),
		`<html><head><link rel="stylesheet" href="main.css"></head><body><p style="background:url('bg.png')">x</p></body></html>`)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	assert.Contains(t, out, "@media print {\nh1{color:black}\n}")
	assert.Contains(t, out, "body{background:url("+uri+")}")
	assert.Contains(t, out, `<p style="background:url(`+uri+`)">`)
	assert.NotContains(t, out, "<link")
}

func TestDisabledKinds(t *testing.T) {
	base := siteDir(t, map[string][]byte{
		"a.png":  pngBytes,
		"app.js": []byte("x()"),
	})
	src := `<html><head><script src="app.js"></script></head><body><img src="a.png"/></body></html>`
	out, _ := process(t, 4, newEnv(base, 4), handler.Table(handler.Set{CSS: true}), src)

	assert.Equal(t, src, out)
}

func TestBaseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	base, err := url.Parse(srv.URL + "/site/")
	require.NoError(t, err)
	env := newEnv(base, 4)
	handlers := handler.Table(handler.All)

	once, _ := process(t, 4, env, handlers, `<html><head><title>t</title></head><body></body></html>`)
	assert.Equal(t, 1, strings.Count(once, "<base "))
	assert.Contains(t, once, `<base href="`+base.String()+`"/>`)

	twice, _ := process(t, 4, env, handlers, once)
	assert.Equal(t, once, twice)
}

func TestBaseSkippedForFiles(t *testing.T) {
	base := siteDir(t, nil)
	out, _ := process(t, 4, newEnv(base, 4), handler.Table(handler.All),
		`<html><head></head><body></body></html>`)
	assert.NotContains(t, out, "<base")
}

func TestSingleThreadMatchesParallel(t *testing.T) {
	files := map[string][]byte{
		"a.png":  pngBytes,
		"b.png":  pngBytes,
		"s.css":  []byte(`p{background:url(a.png)}`),
		"app.js": []byte("run()"),
	}
	src := `<html><head><link rel="stylesheet" href="s.css"><script src="app.js"></script></head>` +
		`<body><img src="a.png"><img src="b.png"><img src="c.png"><div style="background:url(b.png)"></div></body></html>`

	base := siteDir(t, files)
	serial, serialStats := process(t, 1, newEnv(base, 1), handler.Table(handler.All), src)
	parallel, parallelStats := process(t, 16, newEnv(base, 16), handler.Table(handler.All), src)

	assert.Equal(t, serial, parallel)
	assert.Equal(t, serialStats.Matched, parallelStats.Matched)
	assert.Equal(t, serialStats.Applied, parallelStats.Applied)
}

func TestContractViolationAborts(t *testing.T) {
	doc, err := html.NewParser().Parse(`<img src="a.png"><img>`)
	require.NoError(t, err)

	broken := handler.Image
	broken.Matcher = cascadia.MustCompile("img")

	_, err = New(2, zaptest.NewLogger(t)).Run(context.Background(), doc, newEnv(siteDir(t, nil), 2), []handler.Handler{broken})
	require.Error(t, err)
	assert.ErrorIs(t, err, handler.ErrContractViolation)
	assert.Contains(t, err.Error(), "cannot find `src` attr in <img />")
}

func TestEmptyDocument(t *testing.T) {
	out, stats := process(t, 4, newEnv(siteDir(t, nil), 4), nil, `<p>plain</p>`)
	assert.Contains(t, out, "<p>plain</p>")
	assert.Zero(t, stats.Matched)
}

func TestCanceledContextLeavesDocumentAlone(t *testing.T) {
	base := siteDir(t, map[string][]byte{"a.png": pngBytes})
	src := `<html><head></head><body><img src="a.png"/></body></html>`
	doc, err := html.NewParser().Parse(src)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := New(4, zaptest.NewLogger(t)).Run(ctx, doc, newEnv(base, 4), handler.Table(handler.All))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Applied)

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, src, out)
}
