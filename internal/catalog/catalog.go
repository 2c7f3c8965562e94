// Package catalog reads establishments, locations and categories from the
// remote catalog. The catalog owns those records; this package only reads them.
package catalog

import (
	"context"
	"errors"

	"goldenbookAPI/internal/types/establishment"
)

var ErrNotFound = errors.New("catalog record not found")

// Source is the narrow contract the discovery core consumes. The only query
// the backend supports is equality on location; everything else is client side.
type Source interface {
	EstablishmentsByLocation(ctx context.Context, locationID string) ([]establishment.Establishment, error)
	EstablishmentByID(ctx context.Context, id string) (*establishment.Establishment, error)
	LocationByID(ctx context.Context, id string) (*establishment.Location, error)
	Categories(ctx context.Context) ([]establishment.Category, error)
	CategoryByID(ctx context.Context, id string) (*establishment.Category, error)
}
