package docindex

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/net/html"
)

var ErrUnsupportedFormat = goerr.New("unsupported document format")

// Extractor turns a document file into plain text
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// TextExtractor reads plain text formats as is and strips markup from HTML.
type TextExtractor struct{}

var plainExts = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true,
	".json": true, ".log": true, ".yaml": true, ".yml": true,
}

func (TextExtractor) Extract(_ context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case plainExts[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read document", goerr.V("path", path))
		}
		return string(data), nil

	case ext == ".html" || ext == ".htm":
		f, err := os.Open(path)
		if err != nil {
			return "", goerr.Wrap(err, "failed to open document", goerr.V("path", path))
		}
		defer f.Close()
		return HTMLText(f)

	default:
		return "", goerr.Wrap(ErrUnsupportedFormat, "cannot extract text",
			goerr.V("path", path),
			goerr.V("ext", ext))
	}
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"title": true, "pre": true, "blockquote": true,
}

// HTMLText returns the visible text of an HTML document, one non-empty line
// per block.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse html")
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
