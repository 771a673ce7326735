package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aura/pkg/tools"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/html"
)

const (
	webUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	webTextLimit  = 5000
	webFetchLimit = 2 << 20 // 2 MiB response body cap
)

// WebModule lets the model read pages from the internet.
type WebModule struct{}

func (m *WebModule) Name() string { return "web" }

func (m *WebModule) Register(reg *tools.Registry, cfg jsoniter.RawMessage) error {
	var manifest struct {
		TimeoutSeconds int `json:"timeout_seconds"`
	}
	if cfg != nil {
		json.Unmarshal(cfg, &manifest)
	}
	timeout := 10 * time.Second
	if manifest.TimeoutSeconds > 0 {
		timeout = time.Duration(manifest.TimeoutSeconds) * time.Second
	}

	client := &http.Client{Timeout: timeout}

	reg.Register(tools.Spec{
		Name:        "visit_page",
		Description: "Visits a webpage and extracts its text content. Arguments: url (string).",
		Params: []tools.Param{
			{Name: "url", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url, _ := args["url"].(string)
			if url == "" {
				return "", fmt.Errorf("missing 'url' argument")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return "", fmt.Errorf("visiting page: %w", err)
			}
			req.Header.Set("User-Agent", webUserAgent)

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("visiting page: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				return "", fmt.Errorf("visiting page: HTTP %d", resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchLimit))
			if err != nil {
				return "", fmt.Errorf("reading page: %w", err)
			}

			text := extractText(string(body))
			if len(text) > webTextLimit {
				return text[:webTextLimit] + "\n...(truncated)", nil
			}
			return text, nil
		},
	})

	return nil
}

// extractText strips markup, scripts and styles, returning the visible
// text one non-empty line per block.
func extractText(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return page
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String())
}
