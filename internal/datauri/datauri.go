// Package datauri replaces resource references with base64 data URIs.
package datauri

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/tdewolff/parse/v2"
	"go.uber.org/zap"

	"webinliner/internal/loader"
	"webinliner/internal/logging"
)

// Loader fetches a reference relative to the configured base URL.
type Loader interface {
	Load(ctx context.Context, ref string) (*loader.Resource, error)
}

// Encoder turns references into data URIs.
type Encoder struct {
	loader Loader
}

// New creates an Encoder backed by l.
func New(l Loader) *Encoder {
	return &Encoder{loader: l}
}

// Encode formats data as data:<mime>;base64,<data>.
func Encode(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Inline fetches ref and returns it as a data URI. On any failure ref is
// returned unchanged.
func (e *Encoder) Inline(ctx context.Context, ref string) string {
	log := logging.From(ctx)

	if IsDataURI(ref) {
		logging.Trace(log, "already a data URI", zap.Int("length", len(ref)))
		return ref
	}

	res, err := e.loader.Load(ctx, ref)
	if err != nil {
		log.Debug("leaving reference as is", zap.String("ref", ref), zap.Error(err))
		return ref
	}
	return Encode(res.MIME, res.Data)
}

// IsDataURI reports whether s is a well-formed data URI.
func IsDataURI(s string) bool {
	if !strings.HasPrefix(strings.ToLower(s), "data:") {
		return false
	}
	_, _, err := parse.DataURI([]byte(s))
	return err == nil
}
