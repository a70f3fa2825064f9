package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	catalogFlightKey     = "products"
	catalogFlightTimeout = 15 * time.Second
)

// CatalogService proxies the remote product catalog
type CatalogService struct {
	remote RemoteAPI
	sfg    singleflight.Group
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(remote RemoteAPI) *CatalogService {
	return &CatalogService{
		remote: remote,
		logger: util.GetLogger(),
	}
}

// ListProducts fetches the catalog. Concurrent callers share one remote
// request, which is detached from any single caller's cancellation.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	v, err, shared := s.sfg.Do(catalogFlightKey, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogFlightTimeout)
		defer cancel()
		return s.remote.ListProducts(flightCtx)
	})
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	if shared {
		s.logger.Debug("Catalog fetch shared with concurrent caller")
	}

	products := v.([]models.Product)
	out := make([]models.Product, len(products))
	copy(out, products)
	return out, nil
}

// FindProduct resolves a single product by id
func (s *CatalogService) FindProduct(ctx context.Context, id string) (*models.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	for i := range products {
		if products[i].ID == id {
			return &products[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
}
