package handler

import (
	"context"

	"webinliner/internal/html"
)

// Image embeds <img src> as a data URI.
var Image = newHandler("image", "img[src]", "src", encodeAttr("src"))

// Favicon embeds the icon links browsers look for.
var Favicon = newHandler("favicon",
	`link[rel="shortcut icon"][href], link[rel="icon"][href], link[rel="apple-touch-icon"][href]`,
	"href", encodeAttr("href"))

// encodeAttr rewrites attribute name into a data URI. Nothing changes when
// the encoder hands the reference back.
func encodeAttr(name string) Transform {
	return func(ctx context.Context, env *Env, n html.Node) (Patch, error) {
		ref, err := requireAttr(ctx, n, name)
		if err != nil {
			return nil, err
		}

		uri := env.Encoder.Inline(ctx, ref)
		if uri == ref {
			return nil, nil
		}
		return setAttr(n, name, uri), nil
	}
}
