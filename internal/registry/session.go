package registry

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// extractFormToken returns the value of the first <input name=field> in an HTML page.
// An absent input yields "" without error; some deployments do not issue tokens.
func extractFormToken(r io.Reader, field string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse session page: %w", err)
	}

	var token string
	var found bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "input" && attr(n, "name") == field {
			token = strings.TrimSpace(attr(n, "value"))
			found = true
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return token, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
