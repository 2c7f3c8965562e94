package services

import (
	"context"
	"fmt"

	"goldenbookAPI/internal/geo"
	"goldenbookAPI/internal/types/establishment"
	"goldenbookAPI/internal/types/user"
)

type GeoService struct {
	geocoder geo.Geocoder
}

func NewGeoService(geocoder geo.Geocoder) *GeoService {
	return &GeoService{geocoder: geocoder}
}

// ReverseGeocode labels the caller's position in the caller's language.
// A nil address means the position could not be resolved.
func (s *GeoService) ReverseGeocode(ctx context.Context, p user.Principal, lat, lon float64) (*geo.Address, error) {
	at := establishment.Coordinates{Latitude: lat, Longitude: lon}
	if !at.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	return s.geocoder.Reverse(ctx, at, p.Locale)
}
