package html

import (
	"context"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node represents an HTML element in the DOM tree.
// Every method that touches attributes or the tree takes the document lock.
type Node interface {
	// Core node information
	TagName() string
	Attributes(ctx context.Context) (map[string]string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)

	// Content access
	Text(ctx context.Context) (string, error)
	Contains(ctx context.Context, m goquery.Matcher) (bool, error)

	// Modification
	SetAttribute(ctx context.Context, name, value string) error
	Append(ctx context.Context, child *html.Node) error
	ReplaceWith(ctx context.Context, replacement *html.Node) error

	// String renders the node as <tag k="v" ... /> for log lines.
	String() string
}

// Document represents the complete HTML document
type Document interface {
	// Element selection
	Select(m goquery.Matcher) []Node

	// Serialization
	Render(w io.Writer) error
	HTML() (string, error)
}

// Parser handles parsing HTML documents
type Parser interface {
	Parse(html string) (Document, error)
	ParseReader(r io.Reader) (Document, error)
}
