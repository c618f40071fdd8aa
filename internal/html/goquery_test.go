package html

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"webinliner/internal/retry"
)

func parse(t *testing.T, src string) *GoQueryDocument {
	t.Helper()
	doc, err := NewParser().Parse(src)
	require.NoError(t, err)
	return doc.(*GoQueryDocument)
}

func TestSelectAndAttributes(t *testing.T) {
	doc := parse(t, `<img src="a.png" alt="A"><img src="b.png"><p>x</p>`)
	ctx := context.Background()

	nodes := doc.Select(cascadia.MustCompile("img"))
	require.Len(t, nodes, 2)

	assert.Equal(t, "img", nodes[0].TagName())

	src, ok, err := nodes[1].Attribute(ctx, "src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b.png", src)

	_, ok, err = nodes[1].Attribute(ctx, "alt")
	require.NoError(t, err)
	assert.False(t, ok)

	attrs, err := nodes[0].Attributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"src": "a.png", "alt": "A"}, attrs)

	assert.Equal(t, `<img alt="A" src="a.png" />`, nodes[0].String())
}

func TestSetAttribute(t *testing.T) {
	doc := parse(t, `<img src="a.png">`)
	ctx := context.Background()

	img := doc.Select(cascadia.MustCompile("img"))[0]
	require.NoError(t, img.SetAttribute(ctx, "src", "data:image/png;base64,AA=="))

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, `<img src="data:image/png;base64,AA=="/>`)
}

func TestReplaceWith(t *testing.T) {
	doc := parse(t, `<html><head><link rel="stylesheet" href="a.css"><title>t</title></head><body></body></html>`)
	ctx := context.Background()

	link := doc.Select(cascadia.MustCompile("link"))[0]
	require.NoError(t, link.ReplaceWith(ctx, NewElement("style", "p{}", html.Attribute{Key: "type", Val: "text/css"})))

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, `<head><style type="text/css">p{}</style><title>t</title></head>`)
	assert.NotContains(t, out, "<link")
}

func TestAppendAndContains(t *testing.T) {
	doc := parse(t, `<html><head><title>t</title></head></html>`)
	ctx := context.Background()
	base := cascadia.MustCompile("base[href]")

	head := doc.Select(cascadia.MustCompile("head"))[0]
	found, err := head.Contains(ctx, base)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, head.Append(ctx, NewElement("base", "", html.Attribute{Key: "href", Val: "https://example.com/"})))

	found, err = head.Contains(ctx, base)
	require.NoError(t, err)
	assert.True(t, found)

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, `<title>t</title><base href="https://example.com/"/></head>`)
}

func TestText(t *testing.T) {
	doc := parse(t, `<style>p { color: red }</style>`)
	text, err := doc.Select(cascadia.MustCompile("style"))[0].Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p { color: red }", text)
}

func TestLockContentionGivesUp(t *testing.T) {
	doc, err := NewParserWithPolicy(retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxRetries:      2,
	}).Parse(`<img src="a.png">`)
	require.NoError(t, err)
	gd := doc.(*GoQueryDocument)

	img := gd.Select(cascadia.MustCompile("img"))[0]

	gd.mu.Lock()
	_, _, err = img.Attribute(context.Background(), "src")
	gd.mu.Unlock()

	assert.ErrorIs(t, err, ErrLockContention)
}

func TestLockContentionRecovers(t *testing.T) {
	doc := parse(t, `<img src="a.png">`)
	img := doc.Select(cascadia.MustCompile("img"))[0]

	doc.mu.Lock()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		doc.mu.Unlock()
	}()

	err := img.SetAttribute(context.Background(), "src", "b.png")
	wg.Wait()
	require.NoError(t, err)

	src, _, err := img.Attribute(context.Background(), "src")
	require.NoError(t, err)
	assert.Equal(t, "b.png", src)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	doc := parse(t, `<img src="0"><img src="1"><img src="2"><img src="3">`)
	ctx := context.Background()
	nodes := doc.Select(cascadia.MustCompile("img"))

	var wg sync.WaitGroup
	for _, n := range nodes {
		n := n
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := n.Attribute(ctx, "src")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, n.SetAttribute(ctx, "data-seen", "1"))
		}()
	}
	wg.Wait()

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, `data-seen="1"`))
}
