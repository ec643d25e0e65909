package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/buildownai/buddy/internal/llm/assist"
)

const fetchTimeout = 10 * time.Second

// FetchWebpage downloads a page, strips scripts and styles and has the
// small model turn the remaining HTML into Markdown.
func FetchWebpage(as *assist.Assistant) Tool {
	client := &http.Client{Timeout: fetchTimeout}
	return Tool{
		Name:        "fetch_webpage",
		Description: "Fetch a webpage and return its content converted to Markdown.",
		Schema: Schema{
			Required: []string{"url"},
			Properties: map[string]Property{
				"url": {Type: "string", Description: "The absolute http(s) URL of the page to fetch"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			raw := stringArg(args, "url", "")
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return fmt.Sprintf("Error: %q is not a valid http(s) URL", raw), nil
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return "", err
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Sprintf("Error: fetching %s returned status %d", u, resp.StatusCode), nil
			}
			stripped, err := stripMarkup(resp.Body)
			if err != nil {
				return "", err
			}
			return as.HTMLToMarkdown(ctx, stripped)
		},
	}
}

// stripMarkup drops script, style and noscript subtrees and renders the body
// back to HTML. When the document has no body the whole document is used.
func stripMarkup(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	prune(doc)
	node := findBody(doc)
	if node == nil {
		node = doc
	}
	var sb strings.Builder
	if err := html.Render(&sb, node); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			switch c.Data {
			case "script", "style", "noscript":
				n.RemoveChild(c)
				c = next
				continue
			}
		}
		prune(c)
		c = next
	}
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

const npmRegistry = "https://registry.npmjs.org"

// GetNPMPackageInfo looks a package up in the npm registry and returns a
// condensed description of its latest version.
func GetNPMPackageInfo() Tool {
	client := &http.Client{Timeout: fetchTimeout}
	return Tool{
		Name:        "get_npm_package_info",
		Description: "Get name, description, latest version and dependencies of an npm package.",
		Schema: Schema{
			Required: []string{"name"},
			Properties: map[string]Property{
				"name":    {Type: "string", Description: "The npm package name, e.g. react or @types/node"},
				"version": {Type: "string", Description: "A specific version to describe, defaults to the latest release"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			name := stringArg(args, "name", "")
			version := stringArg(args, "version", "")
			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				npmRegistry+"/"+url.PathEscape(name), nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("Accept", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Sprintf("Package %q not found in the npm registry", name), nil
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Sprintf("Error: npm registry returned status %d for %q", resp.StatusCode, name), nil
			}
			var doc struct {
				Name        string            `json:"name"`
				Description string            `json:"description"`
				License     string            `json:"license"`
				Homepage    string            `json:"homepage"`
				DistTags    map[string]string `json:"dist-tags"`
				Versions    map[string]struct {
					Dependencies map[string]string `json:"dependencies"`
				} `json:"versions"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
				return "", err
			}
			selected := doc.DistTags["latest"]
			if version != "" {
				if _, ok := doc.Versions[version]; !ok {
					return fmt.Sprintf("Package %q has no version %q", name, version), nil
				}
				selected = version
			}
			info := map[string]any{
				"name":        doc.Name,
				"description": doc.Description,
				"license":     doc.License,
				"homepage":    doc.Homepage,
				"latest":      doc.DistTags["latest"],
				"version":     selected,
			}
			if v, ok := doc.Versions[selected]; ok && len(v.Dependencies) > 0 {
				info["dependencies"] = v.Dependencies
			}
			b, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}
}
