// Package docs exposes the shared document index to the agent.
package docs

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/docindex"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const (
	searchDocumentsName  = "search_documents"
	processDocumentsName = "process_documents"
	defaultTopK          = 5
)

type docs struct {
	indexer *docindex.Indexer
	topK    int64
}

// New creates the document tools. They are enabled when the client carries
// a document indexer.
func New() *docs {
	return &docs{topK: defaultTopK}
}

func (x *docs) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "document-top-k",
			Usage:       "Number of chunks returned by search_documents",
			Value:       defaultTopK,
			Sources:     cli.EnvVars("SEEKER_DOCUMENT_TOP_K"),
			Destination: &x.topK,
		},
	}
}

func (x *docs) Init(_ context.Context, client *tool.Client) (bool, error) {
	if client == nil || client.Documents == nil {
		return false, nil
	}
	x.indexer = client.Documents
	if x.topK <= 0 {
		x.topK = defaultTopK
	}
	return true, nil
}

func (x *docs) Prompt(_ context.Context) string {
	return `Use search_documents to look up the user's local documents, including pages saved by fetch_url. Call process_documents after new files were saved if search_documents does not find them.`
}

func (x *docs) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        searchDocumentsName,
				Description: "Search for relevant content from uploaded documents",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {
							Type:        genai.TypeString,
							Description: "Natural language search query",
						},
					},
					Required: []string{"query"},
				},
			},
			{
				Name:        processDocumentsName,
				Description: "Index new or changed documents so they become searchable",
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: map[string]*genai.Schema{},
				},
			},
		},
	}
}

func (x *docs) Class(name string) tool.Class {
	if name == searchDocumentsName {
		return tool.ClassSearch
	}
	return tool.ClassGeneral
}

func (x *docs) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	switch fc.Name {
	case searchDocumentsName:
		query, _ := fc.Args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return nil, goerr.New("query is required")
		}

		results, err := x.indexer.Search(ctx, query, int(x.topK))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search documents", goerr.V("query", query))
		}
		return &genai.FunctionResponse{
			Name:     fc.Name,
			Response: map[string]any{"result": formatResults(results)},
		}, nil

	case processDocumentsName:
		report, err := x.indexer.Process(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to process documents")
		}
		return &genai.FunctionResponse{
			Name:     fc.Name,
			Response: map[string]any{"result": formatReport(report)},
		}, nil
	}

	return nil, goerr.New("unknown function", goerr.V("name", fc.Name))
}

func formatResults(results []docindex.SearchResult) string {
	if len(results) == 0 {
		return "No matching documents found."
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("%s\n[Source: %s, ID: %s]", r.Chunk, r.Document, r.ChunkID)
	}
	return strings.Join(parts, "\n\n")
}

func formatReport(r *docindex.Report) string {
	msg := fmt.Sprintf("Document processing completed. Processed %d document(s) (%d chunks), skipped %d unchanged.",
		len(r.Processed), r.Chunks, len(r.Skipped))
	for _, f := range r.Failed {
		msg += fmt.Sprintf("\nFailed: %s: %s", f.Document, f.Error)
	}
	return msg
}
