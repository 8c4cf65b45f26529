// Package web provides internet search, page fetching and URL opening tools.
package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/docindex"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const (
	webSearchName = "web_search"
	fetchURLName  = "fetch_url"
	openURLName   = "open_url"

	defaultSearchURL  = "https://html.duckduckgo.com/html/"
	defaultMaxResults = 5
	previewLength     = 500
	maxBodySize       = 5 << 20
)

type web struct {
	searchURL  string
	disabled   bool
	httpClient *http.Client
	saveDir    string
	now        func() time.Time
}

type Option func(*web)

// WithSearchURL overrides the DuckDuckGo HTML endpoint
func WithSearchURL(u string) Option {
	return func(x *web) {
		x.searchURL = u
	}
}

// WithClock replaces time.Now for names of fetched files
func WithClock(now func() time.Time) Option {
	return func(x *web) {
		x.now = now
	}
}

func New(opts ...Option) *web {
	x := &web{
		searchURL: defaultSearchURL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *web) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "web-search-url",
			Usage:       "DuckDuckGo HTML search endpoint",
			Value:       defaultSearchURL,
			Sources:     cli.EnvVars("SEEKER_WEB_SEARCH_URL"),
			Destination: &x.searchURL,
		},
		&cli.BoolFlag{
			Name:        "disable-web",
			Usage:       "Disable web_search, fetch_url and open_url",
			Sources:     cli.EnvVars("SEEKER_DISABLE_WEB"),
			Destination: &x.disabled,
		},
	}
}

func (x *web) Init(_ context.Context, client *tool.Client) (bool, error) {
	if x.disabled {
		return false, nil
	}

	x.httpClient = &http.Client{Timeout: 30 * time.Second}
	if client != nil {
		if client.HTTPClient != nil {
			x.httpClient = client.HTTPClient
		}
		if client.Documents != nil {
			x.saveDir = client.Documents.DocumentDir()
		}
	}
	return true, nil
}

func (x *web) Prompt(_ context.Context) string {
	prompt := `Use web_search to find information on the internet. Use open_url to show the user a page that proves or illustrates the answer.`
	if x.saveDir != "" {
		prompt += ` Use fetch_url to read a page in full; the page is saved to the document collection so search_documents can find it later.`
	}
	return prompt
}

func (x *web) Spec() *genai.Tool {
	urlParam := map[string]*genai.Schema{
		"url": {
			Type:        genai.TypeString,
			Description: "Absolute http or https URL",
		},
	}

	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        webSearchName,
				Description: "Search the internet for a given query using DuckDuckGo",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {
							Type:        genai.TypeString,
							Description: "Search query",
						},
						"max_results": {
							Type:        genai.TypeInteger,
							Description: "Maximum number of results (default: 5)",
						},
					},
					Required: []string{"query"},
				},
			},
			{
				Name:        fetchURLName,
				Description: "Fetch and extract text content from a URL",
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: urlParam,
					Required:   []string{"url"},
				},
			},
			{
				Name:        openURLName,
				Description: "Open a URL in the user's browser to show proof or evidence",
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: urlParam,
					Required:   []string{"url"},
				},
			},
		},
	}
}

func (x *web) Class(name string) tool.Class {
	switch name {
	case webSearchName:
		return tool.ClassSearch
	case openURLName:
		return tool.ClassNavigation
	}
	return tool.ClassGeneral
}

func (x *web) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	var (
		result string
		err    error
	)

	switch fc.Name {
	case webSearchName:
		query, _ := fc.Args["query"].(string)
		result, err = x.search(ctx, query, intArg(fc.Args, "max_results", defaultMaxResults))
	case fetchURLName:
		target, _ := fc.Args["url"].(string)
		result, err = x.fetch(ctx, target)
	case openURLName:
		target, _ := fc.Args["url"].(string)
		if err = validateURL(target); err == nil {
			logging.From(ctx).Info("opening url", "url", target)
			result = tool.OpenURLPrefix + target
		}
	default:
		err = goerr.New("unknown function", goerr.V("name", fc.Name))
	}
	if err != nil {
		return nil, err
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": result},
	}, nil
}

func (x *web) search(ctx context.Context, query string, maxResults int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", goerr.New("query is required")
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	endpoint, err := url.Parse(x.searchURL)
	if err != nil {
		return "", goerr.Wrap(err, "invalid search endpoint", goerr.V("url", x.searchURL))
	}
	q := endpoint.Query()
	q.Set("q", query)
	endpoint.RawQuery = q.Encode()

	body, err := x.get(ctx, endpoint.String())
	if err != nil {
		return "", goerr.Wrap(err, "search request failed", goerr.V("query", query))
	}

	results, err := parseResults(bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse search results", goerr.V("query", query))
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	formatted := make([]string, len(results))
	for i, r := range results {
		formatted[i] = fmt.Sprintf("Title: %s\nURL: %s\nSnippet: %s\n", r.Title, r.URL, r.Snippet)
	}
	return strings.Join(formatted, "\n"), nil
}

func (x *web) fetch(ctx context.Context, target string) (string, error) {
	if err := validateURL(target); err != nil {
		return "", err
	}

	body, err := x.get(ctx, target)
	if err != nil {
		return "", goerr.Wrap(err, "failed to fetch url", goerr.V("url", target))
	}

	text, err := docindex.HTMLText(bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to extract text", goerr.V("url", target))
	}

	preview := text
	if r := []rune(preview); len(r) > previewLength {
		preview = string(r[:previewLength])
	}

	if x.saveDir == "" {
		return fmt.Sprintf("Fetched content from %s. Content preview:\n%s...", target, preview), nil
	}

	// names stay unique for fetches within the same second
	name := fmt.Sprintf("downloaded_%d_%s.txt", x.now().Unix(), uuid.NewString()[:8])
	if err := os.MkdirAll(x.saveDir, 0o755); err != nil {
		return "", goerr.Wrap(err, "failed to create documents directory", goerr.V("dir", x.saveDir))
	}
	content := "Source: " + target + "\n\n" + text
	if err := os.WriteFile(filepath.Join(x.saveDir, name), []byte(content), 0o644); err != nil {
		return "", goerr.Wrap(err, "failed to save fetched page", goerr.V("file", name))
	}

	return fmt.Sprintf("Successfully fetched content from %s. Saved to %s. Content preview:\n%s...", target, name, preview), nil
}

func (x *web) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; seeker/1.0)")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, goerr.New("unexpected status code", goerr.V("status", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response body")
	}
	return body, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return goerr.New("invalid url", goerr.V("url", raw))
	}
	return nil
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
