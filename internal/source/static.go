package source

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/harvestd/harvestd/internal/model"
)

// ErrNoItems is returned when a source has nothing to enumerate.
var ErrNoItems = errors.New("source: no items to enumerate")

// StaticSource enumerates a fixed list of item names, typically supplied on
// the command line or read from an input file. Blank names are skipped.
type StaticSource struct {
	names      []string
	maxRetries int
}

// NewStaticSource creates a source over the given names. Each item created by
// Items carries the given retry budget.
func NewStaticSource(names []string, maxRetries int) *StaticSource {
	return &StaticSource{names: names, maxRetries: maxRetries}
}

// Items returns one pending item per name, each with a fresh unique ID.
func (s *StaticSource) Items(_ context.Context) ([]*model.BatchItem, error) {
	items := make([]*model.BatchItem, 0, len(s.names))
	for _, name := range s.names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		items = append(items, model.NewBatchItem(uuid.NewString(), name, s.maxRetries))
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}
