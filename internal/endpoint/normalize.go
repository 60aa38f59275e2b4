// Package endpoint holds the path normalization rule applied by every
// component before a path reaches the backend Caller.
package endpoint

import (
	"regexp"
	"strings"
)

var (
	placeholder  = regexp.MustCompile(`<[^>]*>`)
	formatSuffix = regexp.MustCompile(`\.\{?format\}?$`)
)

// Normalize rewrites a catalog path into a concrete request path:
//
//  1. strip one trailing "/"
//  2. substitute "<pk>" with id
//  3. strip any other "<...>" placeholder
//  4. strip a trailing ".{format}" suffix
//  5. remove the first literal "."
//  6. strip a trailing "??"
//
// An empty id removes "<pk>" like any other placeholder.
func Normalize(path, id string) string {
	p := strings.TrimSuffix(path, "/")
	p = strings.ReplaceAll(p, "<pk>", id)
	p = placeholder.ReplaceAllString(p, "")
	p = formatSuffix.ReplaceAllString(p, "")
	p = strings.Replace(p, ".", "", 1)
	p = strings.TrimSuffix(p, "??")
	return p
}

// Join concatenates a base URL and a normalized path with exactly one
// separating slash. When trailingSlash is set a single "/" is appended.
func Join(base, path string, trailingSlash bool) string {
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if trailingSlash && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}
