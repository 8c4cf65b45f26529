package tool

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// Entry describes one callable function
type Entry struct {
	Name        string
	Description string
	Parameters  *genai.Schema
	Class       Class

	tool Tool
}

// Catalog is the set of functions enabled for a session
type Catalog struct {
	entries []*Entry
	byName  map[string]*Entry
	prompts []string
}

func newCatalog() *Catalog {
	return &Catalog{byName: map[string]*Entry{}}
}

func (c *Catalog) add(e *Entry) bool {
	if _, dup := c.byName[e.Name]; dup {
		return false
	}
	c.entries = append(c.entries, e)
	c.byName[e.Name] = e
	return true
}

func (c *Catalog) Lookup(name string) (*Entry, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// Names returns function names in registration order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

// Prompts returns the guidance contributed by enabled tools
func (c *Catalog) Prompts() string {
	return strings.Join(c.prompts, "\n\n")
}

// Describe renders the catalog as a bullet list for the planner, one
// function per line with its parameters.
func (c *Catalog) Describe() string {
	var sb strings.Builder
	for _, e := range c.entries {
		fmt.Fprintf(&sb, "- %s(%s): %s\n", e.Name, describeParams(e.Parameters), e.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func describeParams(s *genai.Schema) string {
	if s == nil || len(s.Properties) == 0 {
		return ""
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]string, 0, len(names))
	for _, name := range names {
		p := fmt.Sprintf("%s: %s", name, strings.ToLower(string(s.Properties[name].Type)))
		if !slices.Contains(s.Required, name) {
			p += "?"
		}
		params = append(params, p)
	}
	return strings.Join(params, ", ")
}
