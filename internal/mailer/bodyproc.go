package mailer

import (
	"net/url"
	"strings"

	htmltotext "github.com/jaytaylor/html2text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// AbsolutizeImageURLs rewrites relative image references in an HTML
// fragment against baseHost. Both src and srcset attributes of img
// elements are rewritten; all other markup passes through untouched.
// An empty baseHost leaves the fragment unchanged.
func AbsolutizeImageURLs(baseHost, fragment string) (string, error) {
	if baseHost == "" || fragment == "" {
		return fragment, nil
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), bodyContext())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, n := range nodes {
		rewriteImages(n, baseHost)
		if err := html.Render(&b, n); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// bodyContext returns a body element node so ParseFragment treats the
// input as body content rather than a full document.
func bodyContext() *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
}

func rewriteImages(n *html.Node, baseHost string) {
	if n.Type == html.ElementNode && n.Data == "img" {
		for i, attr := range n.Attr {
			switch attr.Key {
			case "src":
				n.Attr[i].Val = expandURL(baseHost, attr.Val)
			case "srcset":
				n.Attr[i].Val = expandSrcset(baseHost, attr.Val)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteImages(c, baseHost)
	}
}

// expandURL prefixes baseHost onto a URL that is not already absolute.
func expandURL(baseHost, resourceURL string) string {
	if resourceURL == "" {
		return resourceURL
	}
	if u, err := url.Parse(resourceURL); err == nil && (u.IsAbs() || u.Host != "") {
		return resourceURL
	}
	return baseHost + resourceURL
}

// expandSrcset rewrites each URL in a srcset value, preserving the width
// and density descriptors.
func expandSrcset(baseHost, srcset string) string {
	entries := strings.Split(srcset, ",")
	for i, entry := range entries {
		parts := strings.Fields(entry)
		if len(parts) == 0 {
			continue
		}
		parts[0] = expandURL(baseHost, parts[0])
		entries[i] = strings.Join(parts, " ")
	}
	return strings.Join(entries, ", ")
}

// HTMLToText strips an HTML body down to a plaintext alternative. Links are
// kept inline as their visible text; tables are flattened.
func HTMLToText(fragment string) string {
	text, err := htmltotext.FromString(fragment, htmltotext.Options{TextOnly: true})
	if err != nil {
		// Last-resort fallback: drop tags naively rather than send nothing.
		return stripTags(fragment)
	}
	return text
}

// stripTags removes anything between angle brackets. Only used when the
// HTML is too malformed for the real converter.
func stripTags(fragment string) string {
	var b strings.Builder
	inTag := false
	for _, r := range fragment {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
