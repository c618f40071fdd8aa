package html

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"webinliner/internal/logging"
	"webinliner/internal/retry"
)

// ErrLockContention is returned when the document lock stays busy for the
// whole retry budget.
var ErrLockContention = errors.New("document lock contention")

var errBusy = errors.New("document lock busy")

// GoQueryDocument wraps goquery.Document to implement our Document interface.
// A single RWMutex guards attributes and structure of the whole tree.
type GoQueryDocument struct {
	doc    *goquery.Document
	mu     sync.RWMutex
	policy retry.Policy
}

// GoQueryNode wraps a single-node goquery.Selection to implement our Node interface
type GoQueryNode struct {
	selection *goquery.Selection
	doc       *GoQueryDocument
}

// GoQueryParser implements our Parser interface using goquery
type GoQueryParser struct {
	policy retry.Policy
}

// NewParser creates a new GoQuery-based HTML parser
func NewParser() *GoQueryParser {
	return &GoQueryParser{policy: retry.DefaultPolicy()}
}

// NewParserWithPolicy creates a parser whose documents acquire their lock
// with the given retry policy.
func NewParserWithPolicy(p retry.Policy) *GoQueryParser {
	return &GoQueryParser{policy: p}
}

// Parse parses HTML string into a Document
func (p *GoQueryParser) Parse(htmlStr string) (Document, error) {
	return p.ParseReader(strings.NewReader(htmlStr))
}

// ParseReader parses HTML from r into a Document
func (p *GoQueryParser) ParseReader(r io.Reader) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &GoQueryDocument{doc: doc, policy: p.policy}, nil
}

// Document implementation

// Select returns every element matching m, in document order. The handles are
// captured before any caller mutates the tree.
func (d *GoQueryDocument) Select(m goquery.Matcher) []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	selection := d.doc.FindMatcher(m)
	nodes := make([]Node, selection.Length())

	selection.Each(func(i int, s *goquery.Selection) {
		nodes[i] = &GoQueryNode{selection: s, doc: d}
	})

	return nodes
}

// Render writes the document as HTML to w
func (d *GoQueryDocument) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("failed to serialize HTML: %w", err)
		}
	}
	return nil
}

// HTML returns the complete HTML document as string
func (d *GoQueryDocument) HTML() (string, error) {
	var buf strings.Builder
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// read runs fn holding the read lock, retrying TryRLock with backoff.
func (d *GoQueryDocument) read(ctx context.Context, fn func()) error {
	if err := d.acquire(ctx, d.mu.TryRLock); err != nil {
		return err
	}
	defer d.mu.RUnlock()
	fn()
	return nil
}

// write runs fn holding the write lock, retrying TryLock with backoff.
func (d *GoQueryDocument) write(ctx context.Context, fn func()) error {
	if err := d.acquire(ctx, d.mu.TryLock); err != nil {
		return err
	}
	defer d.mu.Unlock()
	fn()
	return nil
}

func (d *GoQueryDocument) acquire(ctx context.Context, try func() bool) error {
	log := logging.From(ctx)
	err := d.policy.Do(ctx, func() error {
		if !try() {
			return errBusy
		}
		return nil
	}, func(attempt int, _ error) {
		log.Warn("document lock busy", zap.Int("attempt", attempt))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLockContention, err)
	}
	return nil
}

// Node implementation

// TagName returns the element's tag name
func (n *GoQueryNode) TagName() string {
	if n.selection.Length() == 0 {
		return ""
	}
	return goquery.NodeName(n.selection)
}

// Attributes returns a snapshot of all attributes
func (n *GoQueryNode) Attributes(ctx context.Context) (map[string]string, error) {
	attrs := make(map[string]string)

	err := n.doc.read(ctx, func() {
		if n.selection.Length() > 0 {
			for _, attr := range n.selection.Get(0).Attr {
				attrs[attr.Key] = attr.Val
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// Attribute returns the value of a single attribute
func (n *GoQueryNode) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		val    string
		exists bool
	)
	err := n.doc.read(ctx, func() {
		val, exists = n.selection.Attr(name)
	})
	return val, exists, err
}

// Text returns the text content
func (n *GoQueryNode) Text(ctx context.Context) (string, error) {
	var text string
	err := n.doc.read(ctx, func() {
		text = n.selection.Text()
	})
	return text, err
}

// Contains reports whether any descendant matches m
func (n *GoQueryNode) Contains(ctx context.Context, m goquery.Matcher) (bool, error) {
	var found bool
	err := n.doc.read(ctx, func() {
		found = n.selection.FindMatcher(m).Length() > 0
	})
	return found, err
}

// SetAttribute sets an attribute on the element
func (n *GoQueryNode) SetAttribute(ctx context.Context, name, value string) error {
	if n.selection.Length() == 0 {
		return fmt.Errorf("no element to set attribute on")
	}

	return n.doc.write(ctx, func() {
		n.selection.SetAttr(name, value)
	})
}

// Append adds child as the last child of the element
func (n *GoQueryNode) Append(ctx context.Context, child *html.Node) error {
	if n.selection.Length() == 0 {
		return fmt.Errorf("no element to append to")
	}

	return n.doc.write(ctx, func() {
		n.selection.AppendNodes(child)
	})
}

// ReplaceWith inserts replacement right after the element, then detaches the
// element from the tree
func (n *GoQueryNode) ReplaceWith(ctx context.Context, replacement *html.Node) error {
	if n.selection.Length() == 0 {
		return fmt.Errorf("no element to replace")
	}

	return n.doc.write(ctx, func() {
		n.selection.AfterNodes(replacement)
		n.selection.Remove()
	})
}

// String renders the element as <tag k="v" ... /> with sorted attributes.
// Meant for log lines; it waits for the read lock instead of retrying.
func (n *GoQueryNode) String() string {
	if n.selection.Length() == 0 {
		return ""
	}

	n.doc.mu.RLock()
	attrs := n.selection.Get(0).Attr
	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%q", attr.Key, attr.Val))
	}
	n.doc.mu.RUnlock()
	sort.Strings(parts)

	if len(parts) == 0 {
		return fmt.Sprintf("<%s />", n.TagName())
	}
	return fmt.Sprintf("<%s %s />", n.TagName(), strings.Join(parts, " "))
}

// NewElement builds a detached element with the given attributes and, when
// text is not empty, a single text child.
func NewElement(tag string, text string, attrs ...html.Attribute) *html.Node {
	elm := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
	if text != "" {
		elm.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return elm
}
