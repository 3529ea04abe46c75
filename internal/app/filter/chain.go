package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/config"
)

// Rejection records a file refused by the chain.
type Rejection struct {
	Name string
	Code string
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds a chain of the enabled registered filters, in name order.
func NewChainFromConfig(filters map[string]config.FilterConfig) (*Chain, error) {
	names := make([]string, 0, len(filters))
	for name, fc := range filters {
		if fc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	c := NewChain()
	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
		f := factory()
		if err := f.ValidateConfig(filters[name].Settings); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		c.Add(f)
		zlog.Info().Msgf("filter enabled: %s", name)
	}
	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the file.
func (c *Chain) Execute(ctx context.Context, f track.RawFile) Result {
	for _, flt := range c.filters {
		result := flt.Check(ctx, f)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Admit splits files into those every filter accepts and the rejections, keeping input order.
func (c *Chain) Admit(ctx context.Context, files []track.RawFile) ([]track.RawFile, []Rejection) {
	accepted := make([]track.RawFile, 0, len(files))
	var rejected []Rejection
	for _, f := range files {
		if r := c.Execute(ctx, f); !r.Accepted {
			zlog.Info().Msgf("filter: rejected file: name=%s code=%s", f.Name, r.Code)
			rejected = append(rejected, Rejection{Name: f.Name, Code: r.Code})
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
