package loader

import (
	"bytes"
	"mime"
	"path"
	"strings"
)

// OctetStream is the fallback MIME type.
const OctetStream = "application/octet-stream"

type signature struct {
	magic []byte
	mime  string
}

var signatures = []signature{
	{[]byte("GIF87a"), "image/gif"},
	{[]byte("GIF89a"), "image/gif"},
	{[]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, "image/png"},
	{[]byte{0x00, 0x00, 0x01, 0x00}, "image/x-icon"},
	{[]byte{0xff, 0xd8, 0xff}, "image/jpeg"},
	{[]byte("BM"), "image/bmp"},
	{[]byte{'I', 'I', 0x2a, 0x00}, "image/tiff"},
	{[]byte{'M', 'M', 0x00, 0x2a}, "image/tiff"},
}

// Generic extension tables disagree on fonts.
var fontTypes = map[string]string{
	"ttf":   "font/ttf",
	"otf":   "font/otf",
	"woff":  "font/woff",
	"woff2": "font/woff2",
}

// Sniff matches the leading bytes of data against the known image signatures.
func Sniff(data []byte) (string, bool) {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.mime, true
		}
	}
	return "", false
}

// ByExtension guesses a MIME type from a file extension without the dot.
// Parameters such as charset are dropped. Unknown extensions map to
// OctetStream; an empty extension yields no guess.
func ByExtension(ext string) (string, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return "", false
	}
	if t, ok := fontTypes[ext]; ok {
		return t, true
	}
	t := mime.TypeByExtension("." + ext)
	if t == "" {
		return OctetStream, true
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt, true
	}
	return t, true
}

// DetectMIME picks the MIME type of a fetched resource: the declared content
// type wins, then magic bytes, then the extension of name. Parameters of the
// declared type are dropped so the result fits an unquoted url().
func DetectMIME(contentType string, data []byte, name string) string {
	if t, ok := declared(contentType); ok {
		return t
	}
	if t, ok := Sniff(data); ok {
		return t
	}
	if t, ok := ByExtension(path.Ext(name)); ok {
		return t
	}
	return OctetStream
}

// declared normalises a Content-Type header value to its bare media type.
func declared(contentType string) (string, bool) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "", false
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt, true
	}
	// unparseable: keep the part before any parameter, without whitespace
	t, _, _ := strings.Cut(contentType, ";")
	t = strings.Join(strings.Fields(t), "")
	return t, t != ""
}
