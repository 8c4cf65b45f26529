package cli

import (
	"io"

	"github.com/m-mizutani/seeker/pkg/model"
)

type Renderer = renderer

func NewRenderer(w io.Writer, verbose bool) *Renderer {
	return newRenderer(w, io.Discard, verbose)
}

func (r *renderer) Consume(events <-chan model.Event) { r.consume(events) }
func (r *renderer) Replies() <-chan struct{}           { return r.replies }
func (r *renderer) Done() <-chan struct{}              { return r.done }
