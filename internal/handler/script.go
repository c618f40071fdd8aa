package handler

import (
	"context"

	"go.uber.org/zap"

	"webinliner/internal/html"
	"webinliner/internal/logging"
)

// Script inlines <script src>.
var Script = newHandler("script", "script[src]", "src", inlineScript("src"))

// LinkScript inlines <link> elements typed as JavaScript.
var LinkScript = newHandler("link-script",
	`link[type="application/x-javascript"][href], link[type="application/javascript"][href], link[type="text/javascript"][href]`,
	"href", inlineScript("href"))

// LinkJSON inlines <link type=application/json> as a script body.
var LinkJSON = newHandler("link-json", `link[type="application/json"][href]`, "href", inlineScript("href"))

// inlineScript fetches the text behind attribute name and swaps the node for
// a bare <script> holding it.
func inlineScript(name string) Transform {
	return func(ctx context.Context, env *Env, n html.Node) (Patch, error) {
		ref, err := requireAttr(ctx, n, name)
		if err != nil {
			return nil, err
		}

		content, err := env.Loader.LoadString(ctx, ref)
		if err != nil {
			logging.From(ctx).Debug("leaving script as is",
				zap.Stringer("node", n),
				zap.Error(err),
			)
			return nil, nil
		}

		return replace(n, html.NewElement("script", content)), nil
	}
}
