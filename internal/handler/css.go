package handler

import (
	"context"

	"go.uber.org/zap"
	nethtml "golang.org/x/net/html"

	"webinliner/internal/html"
	"webinliner/internal/logging"
)

// ExternalCSS replaces <link rel=stylesheet> with an inline <style>.
var ExternalCSS = newHandler("external-css", `link[rel="stylesheet"][href]`, "href", externalCSS)

// InternalCSS rewrites the references inside <style> blocks.
var InternalCSS = newHandler("internal-css", "style", "", internalCSS)

// InlineCSS rewrites url() references inside style attributes.
var InlineCSS = newHandler("inline-css", "[style]", "", inlineCSS)

func externalCSS(ctx context.Context, env *Env, n html.Node) (Patch, error) {
	href, err := requireAttr(ctx, n, "href")
	if err != nil {
		return nil, err
	}

	content, err := env.Loader.LoadString(ctx, href)
	if err != nil {
		logging.From(ctx).Debug("leaving stylesheet as is",
			zap.Stringer("node", n),
			zap.Error(err),
		)
		return nil, nil
	}

	return replace(n, styleElement(env.CSS.Rewrite(ctx, content))), nil
}

func internalCSS(ctx context.Context, env *Env, n html.Node) (Patch, error) {
	content, err := n.Text(ctx)
	if err != nil {
		return nil, err
	}

	return replace(n, styleElement(env.CSS.Rewrite(ctx, content))), nil
}

func inlineCSS(ctx context.Context, env *Env, n html.Node) (Patch, error) {
	style, err := requireAttr(ctx, n, "style")
	if err != nil {
		return nil, err
	}

	patched := env.CSS.RewriteInline(ctx, style)
	if patched == style {
		return nil, nil
	}
	return setAttr(n, "style", patched), nil
}

func styleElement(css string) *nethtml.Node {
	return html.NewElement("style", css, nethtml.Attribute{Key: "type", Val: "text/css"})
}
