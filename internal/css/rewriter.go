// Package css inlines the external references of a stylesheet: @import
// directives are replaced by the imported text and url() references by data
// URIs.
package css

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webinliner/internal/logging"
)

// Loader fetches a reference as UTF-8 text.
type Loader interface {
	LoadString(ctx context.Context, ref string) (string, error)
}

// Encoder turns a reference into a data URI, returning it unchanged on failure.
type Encoder interface {
	Inline(ctx context.Context, ref string) string
}

// Rewriter rewrites stylesheets. It is safe for concurrent use.
type Rewriter struct {
	loader  Loader
	encoder Encoder
	threads int
}

// NewRewriter creates a Rewriter fetching at most threads references at once.
func NewRewriter(l Loader, e Encoder, threads int) *Rewriter {
	if threads < 1 {
		threads = 1
	}
	return &Rewriter{loader: l, encoder: e, threads: threads}
}

// Rewrite resolves @import directives first and url() references second, so
// that references inside imported stylesheets are inlined as well.
func (r *Rewriter) Rewrite(ctx context.Context, css string) string {
	log := logging.From(ctx)

	log.Info("looking for @import's")
	css = r.RewriteImports(ctx, css)

	log.Info("looking for url()'s")
	return r.RewriteURLs(ctx, css)
}

// RewriteImports replaces every @import whose target can be fetched with the
// target's text, wrapped in an @media block when the directive carries media
// queries. Directives that cannot be fetched are kept verbatim.
func (r *Rewriter) RewriteImports(ctx context.Context, css string) string {
	log := logging.From(ctx)

	refs := make([]string, 0)
	for _, imp := range Imports(css) {
		refs = append(refs, imp.URL)
	}

	table := r.fetchAll(ctx, unique(refs), func(ctx context.Context, ref string) (string, bool) {
		log.Debug("downloading import", zap.String("url", ref))
		content, err := r.loader.LoadString(ctx, ref)
		if err != nil {
			log.Debug("cannot fetch import", zap.String("url", ref), zap.Error(err))
			return "", false
		}
		return content, true
	})
	logging.Trace(log, "import table", zap.Any("table", table))

	patched := replaceAll(importPattern, css, func(groups []string) string {
		content, ok := table[groups[importURL]]
		if !ok {
			log.Debug("leaving @import as is", zap.String("statement", groups[0]))
			return groups[0]
		}

		media := groups[importMedia]
		if strings.TrimSpace(media) == "" {
			return content
		}
		return fmt.Sprintf("@media %s {\n%s\n}", media, content)
	})

	logging.Trace(log, "imports patched", zap.String("css", patched))
	return patched
}

// RewriteURLs replaces every url() reference that can be fetched with a data
// URI. Each distinct reference is fetched once; references that cannot be
// fetched are kept verbatim.
func (r *Rewriter) RewriteURLs(ctx context.Context, css string) string {
	log := logging.From(ctx)

	table := r.fetchAll(ctx, unique(URLs(css)), func(ctx context.Context, ref string) (string, bool) {
		uri := r.encoder.Inline(ctx, ref)
		return "url(" + uri + ")", uri != ref
	})
	logging.Trace(log, "url table", zap.Int("entries", len(table)))

	return r.substituteURLs(ctx, css, func(ref string) (string, bool) {
		v, ok := table[ref]
		return v, ok
	})
}

// RewriteInline inlines the url() references of a style attribute one at a
// time, without deduplication or parallel fetching.
func (r *Rewriter) RewriteInline(ctx context.Context, style string) string {
	return r.substituteURLs(ctx, style, func(ref string) (string, bool) {
		uri := r.encoder.Inline(ctx, ref)
		return "url(" + uri + ")", uri != ref
	})
}

func (r *Rewriter) substituteURLs(ctx context.Context, css string, lookup func(ref string) (string, bool)) string {
	log := logging.From(ctx)

	patched := replaceAll(urlPattern, css, func(groups []string) string {
		if v, ok := lookup(groups[urlURL]); ok {
			log.Debug("making data URI", zap.String("url", groups[urlURL]))
			return v
		}
		log.Debug("skipping", zap.String("match", groups[0]))
		return groups[0]
	})

	logging.Trace(log, "urls patched", zap.Int("length", len(patched)))
	return patched
}

// fetchAll runs fetch for every ref on at most r.threads goroutines and returns
// the successful results keyed by ref. The returned map is no longer written.
func (r *Rewriter) fetchAll(ctx context.Context, refs []string, fetch func(ctx context.Context, ref string) (string, bool)) map[string]string {
	var (
		mu    sync.Mutex
		table = make(map[string]string, len(refs))
	)

	var g errgroup.Group
	g.SetLimit(r.threads)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			v, ok := fetch(ctx, ref)
			if !ok {
				return nil
			}
			mu.Lock()
			table[ref] = v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return table
}
