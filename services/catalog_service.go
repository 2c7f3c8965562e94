package services

import (
	"context"

	"goldenbookAPI/internal/catalog"
	"goldenbookAPI/internal/types/establishment"
)

// CatalogService is the read side of the catalog, instrumented. It also
// serves as the discovery Loader.
type CatalogService struct {
	source catalog.Source
}

func NewCatalogService(source catalog.Source) *CatalogService {
	return &CatalogService{source: source}
}

func (s *CatalogService) EstablishmentsByLocation(ctx context.Context, locationID string) ([]establishment.Establishment, error) {
	list, err := s.source.EstablishmentsByLocation(ctx, locationID)
	observeFetch("establishments", err)
	return list, err
}

func (s *CatalogService) GetEstablishment(ctx context.Context, id string) (*establishment.Establishment, error) {
	e, err := s.source.EstablishmentByID(ctx, id)
	observeFetch("establishment", err)
	return e, err
}

func (s *CatalogService) GetLocation(ctx context.Context, id string) (*establishment.Location, error) {
	l, err := s.source.LocationByID(ctx, id)
	observeFetch("location", err)
	return l, err
}

func (s *CatalogService) GetCategories(ctx context.Context) ([]establishment.CategoryResponse, error) {
	list, err := s.source.Categories(ctx)
	observeFetch("categories", err)
	if err != nil {
		return nil, err
	}

	out := make([]establishment.CategoryResponse, 0, len(list))
	for _, c := range list {
		out = append(out, c.Response())
	}
	return out, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (*establishment.CategoryResponse, error) {
	c, err := s.source.CategoryByID(ctx, id)
	observeFetch("category", err)
	if err != nil {
		return nil, err
	}

	resp := c.Response()
	return &resp, nil
}
