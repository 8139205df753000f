// Package extractor applies per-domain rule chains to fetched product pages.
package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Page is a fetched content blob parsed once and shared by all rule
// applications for the item. The same node tree backs both the CSS and the
// XPath strategies.
type Page struct {
	doc  *goquery.Document
	root *html.Node

	ldOnce sync.Once
	ld     []map[string]interface{}
}

var ldScriptSel = cascadia.MustCompile(`script[type="application/ld+json"]`)

// Parse builds a Page from raw HTML. Empty content is rejected as
// malformed; the HTML parser itself is lenient and repairs broken markup.
func Parse(body []byte) (*Page, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("parse page: empty content")
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{
		doc:  goquery.NewDocumentFromNode(root),
		root: root,
	}, nil
}

// structuredData returns every JSON object found in ld+json script blocks,
// with top-level arrays and @graph containers flattened. Parsed lazily and
// cached on the page.
func (p *Page) structuredData() []map[string]interface{} {
	p.ldOnce.Do(func() {
		p.doc.FindMatcher(ldScriptSel).Each(func(_ int, s *goquery.Selection) {
			var v interface{}
			if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
				return
			}
			p.ld = append(p.ld, flattenLD(v)...)
		})
	})
	return p.ld
}

func flattenLD(v interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	switch t := v.(type) {
	case map[string]interface{}:
		out = append(out, t)
		if graph, ok := t["@graph"]; ok {
			out = append(out, flattenLD(graph)...)
		}
	case []interface{}:
		for _, item := range t {
			out = append(out, flattenLD(item)...)
		}
	}
	return out
}

// productTypes is the set of schema.org types a structured data rule may
// resolve against.
var productTypes = map[string]bool{
	"product":           true,
	"individualproduct": true,
	"productmodel":      true,
	"offer":             true,
	"aggregateoffer":    true,
}

func isProductObject(obj map[string]interface{}) bool {
	switch t := obj["@type"].(type) {
	case string:
		return productTypes[strings.ToLower(t)]
	case []interface{}:
		for _, v := range t {
			if s, ok := v.(string); ok && productTypes[strings.ToLower(s)] {
				return true
			}
		}
	}
	return false
}
