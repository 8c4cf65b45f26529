package tool

import (
	"net/http"

	"github.com/m-mizutani/seeker/pkg/adapter"
	"github.com/m-mizutani/seeker/pkg/docindex"
)

// Client contains shared resources that tools can use
type Client struct {
	Documents  *docindex.Indexer
	Gemini     adapter.Gemini
	HTTPClient *http.Client
}
