// Package inliner turns an HTML document into a single self-contained file by
// embedding the stylesheets, scripts, images and favicons it references.
package inliner

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"webinliner/internal/config"
	"webinliner/internal/css"
	"webinliner/internal/datauri"
	"webinliner/internal/dispatch"
	"webinliner/internal/handler"
	"webinliner/internal/html"
	"webinliner/internal/loader"
)

// Inliner is the main resource inlining engine
type Inliner struct {
	config     config.Config
	log        *zap.Logger
	htmlParser html.Parser
	dispatcher *dispatch.Dispatcher
	handlers   []handler.Handler
}

// New creates a new inliner with the given configuration
func New(cfg config.Config, log *zap.Logger) *Inliner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inliner{
		config:     cfg,
		log:        log,
		htmlParser: html.NewParser(),
		dispatcher: dispatch.New(cfg.Threads, log),
		handlers:   handler.Table(cfg.Handlers()),
	}
}

// NewWithDefaults creates a new inliner embedding everything
func NewWithDefaults() *Inliner {
	return New(config.Default(), nil)
}

// InlineResult contains the result of an inlining run
type InlineResult struct {
	HTML            string          // Final self-contained HTML
	Unresolved      []Unresolved    // References left as they were
	ProcessingStats ProcessingStats // Performance and processing statistics
}

// ProcessingStats contains metrics from the inlining process
type ProcessingStats struct {
	NodesMatched     int   // Nodes matched by any handler
	PatchesApplied   int   // Mutations applied to the document
	ProcessingTimeMs int64 // Processing time in milliseconds
}

func (s ProcessingStats) String() string {
	return fmt.Sprintf("matched %d nodes, applied %d patches in %dms",
		s.NodesMatched, s.PatchesApplied, s.ProcessingTimeMs)
}

// Unresolved is a reference that could not be embedded
type Unresolved struct {
	Handler string // handler that matched the node
	Node    string // node as <tag k="v" />
	Ref     string // the reference left in place
}

// Handlers returns the active handler table
func (i *Inliner) Handlers() []handler.Handler {
	return i.handlers
}

// Loader returns a loader resolving against base with the configured timeout
func (i *Inliner) Loader(base *url.URL) *loader.Loader {
	return loader.New(base, loader.WithTimeout(i.config.FetchTimeout))
}

// Inline processes htmlContent, resolving relative references against base
func (i *Inliner) Inline(ctx context.Context, htmlContent string, base *url.URL) (*InlineResult, error) {
	return i.inline(ctx, strings.NewReader(htmlContent), base)
}

// InlineReader is Inline for documents read from r; the result is written to w
func (i *Inliner) InlineReader(ctx context.Context, r io.Reader, w io.Writer, base *url.URL) (*InlineResult, error) {
	result, err := i.inline(ctx, r, base)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, result.HTML); err != nil {
		return nil, fmt.Errorf("failed to write HTML: %w", err)
	}
	return result, nil
}

// InlineString is a convenience method returning only the HTML
func (i *Inliner) InlineString(ctx context.Context, htmlContent string, base *url.URL) (string, error) {
	result, err := i.Inline(ctx, htmlContent, base)
	if err != nil {
		return "", err
	}
	return result.HTML, nil
}

func (i *Inliner) inline(ctx context.Context, r io.Reader, base *url.URL) (*InlineResult, error) {
	// Parse the HTML document
	doc, err := i.htmlParser.ParseReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	stats, err := i.InlineDocument(ctx, doc, base)
	if err != nil {
		return nil, fmt.Errorf("failed to process document: %w", err)
	}

	unresolved, err := i.unresolved(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to collect unresolved references: %w", err)
	}

	// Generate final HTML
	finalHTML, err := doc.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize HTML: %w", err)
	}

	return &InlineResult{
		HTML:       finalHTML,
		Unresolved: unresolved,
		ProcessingStats: ProcessingStats{
			NodesMatched:     stats.Matched,
			PatchesApplied:   stats.Applied,
			ProcessingTimeMs: stats.Duration.Milliseconds(),
		},
	}, nil
}

// InlineDocument runs the handler table over an already parsed document
func (i *Inliner) InlineDocument(ctx context.Context, doc html.Document, base *url.URL) (dispatch.Stats, error) {
	return i.dispatcher.Run(ctx, doc, i.env(base), i.handlers)
}

func (i *Inliner) env(base *url.URL) *handler.Env {
	l := i.Loader(base)
	enc := datauri.New(l)

	return &handler.Env{
		Base:    base,
		Loader:  l,
		Encoder: enc,
		CSS:     css.NewRewriter(l, enc, i.config.Threads),
	}
}

// unresolved lists the references still pointing outside the document
func (i *Inliner) unresolved(ctx context.Context, doc html.Document) ([]Unresolved, error) {
	var out []Unresolved
	start := time.Now()

	for _, h := range i.handlers {
		if h.Ref == "" {
			continue
		}
		for _, n := range doc.Select(h.Matcher) {
			ref, ok, err := n.Attribute(ctx, h.Ref)
			if err != nil {
				return nil, err
			}
			if !ok || datauri.IsDataURI(ref) {
				continue
			}
			out = append(out, Unresolved{Handler: h.Name, Node: n.String(), Ref: ref})
		}
	}

	for _, u := range out {
		i.log.Warn("reference left as is",
			zap.String("handler", u.Handler),
			zap.String("ref", u.Ref),
		)
	}
	i.log.Debug("unresolved references collected",
		zap.Int("count", len(out)),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// InlineString inlines htmlContent with the default configuration
func InlineString(ctx context.Context, htmlContent string, base *url.URL) (string, error) {
	return NewWithDefaults().InlineString(ctx, htmlContent, base)
}
