package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/adapter/embedtest"
	"github.com/m-mizutani/seeker/pkg/docindex"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/m-mizutani/seeker/pkg/tool/web"
)

const resultPage = `<html><body>
<div class="result results_links">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The Go <b>Programming</b> Language</a>
  </h2>
  <a class="result__snippet" href="#">Documentation for the Go language.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  <a class="result__snippet" href="#">Discover packages.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://go.dev/blog/">The Go Blog</a>
</div>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Query().Get("q"), "golang docs")
		_, _ = w.Write([]byte(resultPage))
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><script>x()</script><h1>Generics</h1><p>Type parameters arrived in Go 1.18.</p></body></html>`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, srv *httptest.Server) (*tool.Registry, *tool.Catalog, string) {
	t.Helper()
	root := t.TempDir()
	docDir := filepath.Join(root, "documents")
	indexer := docindex.New(docDir, filepath.Join(root, "index"), embedtest.New(8))

	w := web.New(
		web.WithSearchURL(srv.URL+"/html/"),
		web.WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
	reg := tool.New(&tool.Client{Documents: indexer, HTTPClient: srv.Client()}, w)
	catalog, err := reg.Catalog(context.Background())
	gt.NoError(t, err)
	return reg, catalog, docDir
}

func TestWebSearch(t *testing.T) {
	srv := newServer(t)
	reg, catalog, _ := setup(t, srv)

	res, err := reg.Execute(context.Background(), catalog, "FUNCTION_CALL: web_search|query=golang docs|max_results=2")
	gt.NoError(t, err)
	gt.Equal(t, res.Class, tool.ClassSearch)
	gt.Equal(t, res.Result,
		"Title: The Go Programming Language\nURL: https://go.dev/doc/\nSnippet: Documentation for the Go language.\n"+
			"\n"+
			"Title: Go Packages\nURL: https://pkg.go.dev/\nSnippet: Discover packages.\n")
}

var savedName = regexp.MustCompile(`Saved to (downloaded_1700000000_[0-9a-f]{8}\.txt)`)

func TestFetchURLSavesDocument(t *testing.T) {
	srv := newServer(t)
	reg, catalog, docDir := setup(t, srv)

	res, err := reg.Execute(context.Background(), catalog, `FUNCTION_CALL: fetch_url {"url": "`+srv.URL+`/article"}`)
	gt.NoError(t, err)
	gt.S(t, res.Result).Contains("Type parameters arrived in Go 1.18.")
	m := savedName.FindStringSubmatch(res.Result)
	gt.A(t, m).Length(2)

	saved, err := os.ReadFile(filepath.Join(docDir, m[1]))
	gt.NoError(t, err)
	gt.Equal(t, string(saved), "Source: "+srv.URL+"/article\n\nGenerics\nType parameters arrived in Go 1.18.")

	t.Run("fetches in the same second keep separate files", func(t *testing.T) {
		again, err := reg.Execute(context.Background(), catalog, `FUNCTION_CALL: fetch_url {"url": "`+srv.URL+`/article"}`)
		gt.NoError(t, err)
		m2 := savedName.FindStringSubmatch(again.Result)
		gt.A(t, m2).Length(2)
		gt.NotEqual(t, m2[1], m[1])

		entries, err := os.ReadDir(docDir)
		gt.NoError(t, err)
		gt.A(t, entries).Length(2)
	})
}

func TestFetchURLFailures(t *testing.T) {
	srv := newServer(t)
	reg, catalog, _ := setup(t, srv)

	for _, plan := range []string{
		"FUNCTION_CALL: fetch_url|url=" + srv.URL + "/missing",
		"FUNCTION_CALL: fetch_url|url=file:///etc/passwd",
	} {
		_, err := reg.Execute(context.Background(), catalog, plan)
		gt.True(t, goerr.HasTag(err, tool.ErrTagExecution))
	}
}

func TestOpenURL(t *testing.T) {
	srv := newServer(t)
	reg, catalog, _ := setup(t, srv)

	res, err := reg.Execute(context.Background(), catalog, "FUNCTION_CALL: open_url|url=https://go.dev/")
	gt.NoError(t, err)
	gt.Equal(t, res.Class, tool.ClassNavigation)
	gt.Equal(t, res.Result, tool.OpenURLPrefix+"https://go.dev/")
}
