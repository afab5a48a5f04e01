package sink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/ports"
)

// Registry keeps a mapping from sink names to their implementations.
type Registry struct {
	writers map[string]ports.SnapshotWriter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{writers: map[string]ports.SnapshotWriter{}}
}

// Register adds or replaces a sink implementation.
func (r *Registry) Register(writer ports.SnapshotWriter) {
	if r.writers == nil {
		r.writers = map[string]ports.SnapshotWriter{}
	}
	r.writers[writer.Name()] = writer
}

// Resolve returns a sink by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.SnapshotWriter, error) {
	if writer, ok := r.writers[name]; ok {
		return writer, nil
	}
	return nil, fmt.Errorf("sink %s is not registered (known: %s)", name, strings.Join(r.Names(), ", "))
}

// Names lists registered sinks in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.writers))
	for name := range r.writers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves every name and combines the sinks into one writer. Repeated
// names are collapsed.
func (r *Registry) Select(names ...string) (*Fanout, error) {
	if len(names) == 0 {
		return nil, errors.New("no sink selected")
	}

	seen := make(map[string]bool, len(names))
	writers := make([]ports.SnapshotWriter, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		writer, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		writers = append(writers, writer)
	}
	return NewFanout(writers...), nil
}

// Fanout writes the same snapshot to several sinks in order. Every sink is
// attempted; any failure fails the write.
type Fanout struct {
	writers []ports.SnapshotWriter
}

var _ ports.SnapshotWriter = (*Fanout)(nil)

func NewFanout(writers ...ports.SnapshotWriter) *Fanout {
	return &Fanout{writers: writers}
}

func (f *Fanout) Name() string {
	names := make([]string, len(f.writers))
	for i, w := range f.writers {
		names[i] = w.Name()
	}
	return strings.Join(names, "+")
}

func (f *Fanout) Write(ctx context.Context, articles []domain.Article) error {
	var errs []error
	for _, w := range f.writers {
		if err := w.Write(ctx, articles); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, errors.Join(errs...))
	}
	return nil
}
