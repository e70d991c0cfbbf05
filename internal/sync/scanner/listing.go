package scanner

import (
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseListing extracts entries from a directory index page. Only anchors
// that are direct children of <td class="link"> cells count; every entry
// shares the given timestamp.
func ParseListing(r io.Reader, date time.Time) ([]RemoteEntry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var entries []RemoteEntry
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Td && hasClass(n, "link") {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || c.DataAtom != atom.A {
					continue
				}
				href, ok := attr(c, "href")
				if !ok {
					continue
				}
				if name, ok := entryName(href); ok {
					entries = append(entries, RemoteEntry{Name: name, LastModified: date})
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)

	return entries, nil
}

// entryName decodes href and accepts it only if it is one path component,
// optionally followed by a single "/".
func entryName(href string) (string, bool) {
	if strings.ContainsAny(href, "?#") {
		return "", false
	}
	name, err := url.PathUnescape(href)
	if err != nil {
		return "", false
	}

	base := strings.TrimSuffix(name, "/")
	if base == "" || base == "." || base == ".." {
		return "", false
	}
	if strings.ContainsAny(base, "/\\") {
		return "", false
	}
	return name, true
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// ParseHTTPDate parses a Date or Last-Modified header value. RFC 1123 and
// the other HTTP formats are tried first, then any RFC 5322 date.
func ParseHTTPDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := http.ParseTime(value); err == nil {
		return t, true
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
