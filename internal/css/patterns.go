package css

import (
	"regexp"
	"strings"
)

// importPattern matches @import "x"; @import 'x'; @import url("x") media;
// and @import url('x') media; capturing the location and the media text.
var importPattern = regexp.MustCompile(`@import\s+` + // @import
	`(?:url\(["']?)?` + // url(, url(", url('
	`["']` + // opening quote, url() must be quoted
	`(?P<url>[^"')]+)` + // resource location
	`["']` + // closing quote
	`\)?` + // maybe closing url() bracket
	`\s*` + // spaces before media or ;
	`(?P<media>[^;\n]*)` + // media queries
	`;`)

// urlPattern matches url(x), url("x") and url('x').
var urlPattern = regexp.MustCompile(`url\(["']?` + // url(, url(", url('
	`(?P<url>[^"')]+?)` + // resource location
	`["']?\)`) // closing bracket

var (
	importURL   = importPattern.SubexpIndex("url")
	importMedia = importPattern.SubexpIndex("media")
	urlURL      = urlPattern.SubexpIndex("url")
)

// Import is one @import directive found in a stylesheet.
type Import struct {
	Statement string // the whole directive including the trailing semicolon
	URL       string
	Media     string
}

// Imports returns every @import directive of css in source order.
func Imports(css string) []Import {
	var imports []Import
	for _, m := range importPattern.FindAllStringSubmatch(css, -1) {
		imports = append(imports, Import{
			Statement: m[0],
			URL:       m[importURL],
			Media:     m[importMedia],
		})
	}
	return imports
}

// URLs returns the argument of every url() reference of css in source order.
func URLs(css string) []string {
	var urls []string
	for _, m := range urlPattern.FindAllStringSubmatch(css, -1) {
		urls = append(urls, m[urlURL])
	}
	return urls
}

// unique returns the distinct values of refs, keeping first-seen order.
func unique(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// replaceAll replaces every match of re in src with the result of repl, which
// receives the full match followed by all submatches.
func replaceAll(re *regexp.Regexp, src string, repl func(groups []string) string) string {
	matches := re.FindAllStringSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src
	}

	var b strings.Builder
	b.Grow(len(src))
	last := 0
	for _, idx := range matches {
		b.WriteString(src[last:idx[0]])
		groups := make([]string, len(idx)/2)
		for i := range groups {
			if idx[2*i] >= 0 {
				groups[i] = src[idx[2*i]:idx[2*i+1]]
			}
		}
		b.WriteString(repl(groups))
		last = idx[1]
	}
	b.WriteString(src[last:])
	return b.String()
}
