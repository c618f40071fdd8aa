package handler

import (
	"context"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	nethtml "golang.org/x/net/html"

	"webinliner/internal/html"
	"webinliner/internal/logging"
)

var baseHref = cascadia.MustCompile("base[href]")

// Base appends <base href> to <head> for documents fetched over http(s), so
// references the run could not embed still resolve against the origin.
var Base = newHandler("base", "head", "", baseTransform)

func baseTransform(_ context.Context, env *Env, n html.Node) (Patch, error) {
	if env.Base == nil {
		return nil, nil
	}
	switch env.Base.Scheme {
	case "http", "https":
	default:
		return nil, nil
	}
	href := env.Base.String()

	// The check runs inside the patch so two <head> matches can not both append.
	return func(ctx context.Context) error {
		log := logging.From(ctx)

		found, err := n.Contains(ctx, baseHref)
		if err != nil {
			return err
		}
		if found {
			log.Debug("base[href] found; skipping", zap.Stringer("node", n))
			return nil
		}

		log.Debug("appending <base />", zap.String("href", href))
		return n.Append(ctx, html.NewElement("base", "", nethtml.Attribute{Key: "href", Val: href}))
	}, nil
}
