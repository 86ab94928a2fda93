// Package service holds the collaborators the pipeline and API share on top of the repositories.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/formbricks/themes/internal/models"
	"github.com/formbricks/themes/internal/observability"
	"github.com/formbricks/themes/pkg/cache"
)

const cacheNameCustomerDirectory = "customer_directory"

// CustomersRepository is the customer directory storage.
type CustomersRepository interface {
	GetByNames(ctx context.Context, names []string) (map[string]models.Customer, error)
}

// CustomerDirectory resolves account names to customers through a TTL-bounded cache.
type CustomerDirectory struct {
	repo    CustomersRepository
	cache   *cache.LoaderCache[string, models.Customer]
	metrics observability.CacheMetrics
}

// NewCustomerDirectory creates a directory over repo. metrics may be nil.
func NewCustomerDirectory(
	repo CustomersRepository, size int, ttl time.Duration, metrics observability.CacheMetrics,
) *CustomerDirectory {
	return &CustomerDirectory{
		repo:    repo,
		cache:   cache.NewLoaderCache[string, models.Customer](size, ttl, func(s string) string { return s }),
		metrics: metrics,
	}
}

// Resolve returns the customers known for names. Unknown names and the "unknown" bucket are absent.
func (d *CustomerDirectory) Resolve(ctx context.Context, names []string) (map[string]models.Customer, error) {
	lookup := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))

	for _, n := range names {
		if _, dup := seen[n]; dup || n == "" || n == models.UnknownAccount {
			continue
		}

		seen[n] = struct{}{}
		lookup = append(lookup, n)
	}

	if len(lookup) == 0 {
		return map[string]models.Customer{}, nil
	}

	customers, hits, err := d.cache.GetMany(ctx, lookup, d.repo.GetByNames)
	if err != nil {
		return nil, fmt.Errorf("resolve customers: %w", err)
	}

	if d.metrics != nil {
		for range hits {
			d.metrics.RecordHit(ctx, cacheNameCustomerDirectory)
		}

		for range len(lookup) - hits {
			d.metrics.RecordMiss(ctx, cacheNameCustomerDirectory)
		}
	}

	return customers, nil
}
