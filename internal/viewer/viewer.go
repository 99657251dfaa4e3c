package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/logger"
)

// Viewer owns a selection and wires the registry to the renderer: every
// selection change triggers a full redraw.
type Viewer struct {
	client   *Client
	sel      *Selection
	registry *Registry
	renderer *Renderer
	logger   logger.Logger
}

// New creates a viewer that reads through client and draws onto canvas.
func New(client *Client, canvas Canvas, l logger.Logger, opts ...RendererOption) *Viewer {
	v := &Viewer{
		client:   client,
		sel:      NewSelection(),
		renderer: NewRenderer(canvas, opts...),
		logger:   l,
	}
	v.registry = NewRegistry(client, v.sel, WithOnChange(v.redraw), WithRegistryLogger(l))
	return v
}

func (v *Viewer) redraw() {
	if err := v.renderer.Render(v.sel); err != nil && v.logger != nil {
		v.logger.Error(context.Background(), "redraw failed", logger.Error(err))
	}
}

// Selection returns the active selection.
func (v *Viewer) Selection() *Selection { return v.sel }

// Registry returns the session registry.
func (v *Viewer) Registry() *Registry { return v.registry }

// Refresh fetches the session list, newest first.
func (v *Viewer) Refresh(ctx context.Context) ([]types.Entry, error) {
	return v.registry.List(ctx)
}

// Toggle flips one session in or out of the selection.
func (v *Viewer) Toggle(ctx context.Context, id string) RowState {
	return v.registry.Toggle(ctx, id)
}

// Show activates ids, waits for their fetches, and reports the ones that failed.
func (v *Viewer) Show(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if v.registry.State(id) == Inactive {
			v.registry.Toggle(ctx, id)
		}
	}
	if err := v.registry.Wait(ctx); err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		if err := v.registry.Err(id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Redraw renders the current selection again.
func (v *Viewer) Redraw() error {
	return v.renderer.Render(v.sel)
}

// Summary renders the feature table of the current selection.
func (v *Viewer) Summary() string {
	return SummaryTable(v.sel.Details())
}
