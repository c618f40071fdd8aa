// Package handler holds the fixed table of (selector, transform) pairs that
// embed one kind of resource reference each.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/andybalholm/cascadia"
	nethtml "golang.org/x/net/html"

	"webinliner/internal/html"
)

// ErrContractViolation marks a handler invoked on a node its selector should
// never have matched.
var ErrContractViolation = errors.New("handler contract violation")

// ContractError reports the node and the missing attribute.
type ContractError struct {
	Tag  string
	Attr string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("cannot find `%s` attr in <%s />", e.Attr, e.Tag)
}

func (e *ContractError) Unwrap() error { return ErrContractViolation }

// TextLoader fetches a reference as UTF-8 text.
type TextLoader interface {
	LoadString(ctx context.Context, ref string) (string, error)
}

// Encoder turns a reference into a data URI or returns it unchanged.
type Encoder interface {
	Inline(ctx context.Context, ref string) string
}

// StyleRewriter inlines the references of CSS text.
type StyleRewriter interface {
	Rewrite(ctx context.Context, css string) string
	RewriteInline(ctx context.Context, style string) string
}

// Env is everything a transform may use besides the node itself.
type Env struct {
	Base    *url.URL
	Loader  TextLoader
	Encoder Encoder
	CSS     StyleRewriter
}

// Patch applies the mutation a transform decided on. Patches run one at a
// time on the dispatching goroutine.
type Patch func(ctx context.Context) error

// Transform inspects a node, fetches what it needs and returns the patch to
// apply, or nil when the node stays as it is.
type Transform func(ctx context.Context, env *Env, n html.Node) (Patch, error)

// Handler pairs a selector with its transform.
type Handler struct {
	Name     string
	Selector string
	Matcher  cascadia.Selector

	// Ref names the attribute holding the embedded reference. Empty for
	// handlers working on text content.
	Ref string

	Transform Transform
}

func newHandler(name, selector, ref string, fn Transform) Handler {
	return Handler{
		Name:      name,
		Selector:  selector,
		Matcher:   cascadia.MustCompile(selector),
		Ref:       ref,
		Transform: fn,
	}
}

// Set selects which resource kinds get embedded.
type Set struct {
	JS     bool
	CSS    bool
	Images bool
}

// All enables every handler.
var All = Set{JS: true, CSS: true, Images: true}

// Table returns the active handlers. Base and favicon handlers are always on.
func Table(s Set) []Handler {
	todo := []Handler{
		Base,
		Favicon,
	}

	if s.JS {
		todo = append(todo,
			Script,
			LinkScript,
			LinkJSON,
		)
	}

	if s.CSS {
		todo = append(todo,
			InternalCSS,
			ExternalCSS,
			InlineCSS,
		)
	}

	if s.Images {
		todo = append(todo, Image)
	}

	return todo
}

// requireAttr reads attribute name or reports a contract violation.
func requireAttr(ctx context.Context, n html.Node, name string) (string, error) {
	val, ok, err := n.Attribute(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &ContractError{Tag: n.TagName(), Attr: name}
	}
	return val, nil
}

// setAttr returns a patch writing value into attribute name.
func setAttr(n html.Node, name, value string) Patch {
	return func(ctx context.Context) error {
		return n.SetAttribute(ctx, name, value)
	}
}

// replace returns a patch swapping n for elm.
func replace(n html.Node, elm *nethtml.Node) Patch {
	return func(ctx context.Context) error {
		return n.ReplaceWith(ctx, elm)
	}
}
