package catalog

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"goldenbookAPI/internal/types/establishment"
)

const (
	establishmentsCollection = "establishments"
	locationsCollection      = "locations"
	categoriesCollection     = "categories"
)

// FirestoreSource reads the catalog collections directly. Documents are
// decoded loosely: absent fields fall back to the Establishment defaults.
type FirestoreSource struct {
	client *firestore.Client
}

func NewFirestoreSource(client *firestore.Client) *FirestoreSource {
	return &FirestoreSource{client: client}
}

type establishmentDoc struct {
	Name             string            `firestore:"name"`
	Address          string            `firestore:"address"`
	City             string            `firestore:"city"`
	ShortDescription string            `firestore:"shortDescription"`
	Description      string            `firestore:"description"`
	Categories       []string          `firestore:"categories"`
	Subcategories    []string          `firestore:"subcategories"`
	Rating           float64           `firestore:"rating"`
	ReviewCount      int64             `firestore:"reviewCount"`
	FavoritesCount   int64             `firestore:"favoritesCount"`
	Coordinates      interface{}       `firestore:"coordinates"`
	MainImage        string            `firestore:"mainImage"`
	Gallery          []string          `firestore:"gallery"`
	OpeningHours     map[string]string `firestore:"openingHours"`
}

type locationDoc struct {
	Name        string      `firestore:"name"`
	Country     string      `firestore:"country"`
	Coordinates interface{} `firestore:"coordinates"`
}

type categoryDoc struct {
	Title         string            `firestore:"title"`
	Subcategories map[string]string `firestore:"subcategories"`
}

func (s *FirestoreSource) EstablishmentsByLocation(ctx context.Context, locationID string) ([]establishment.Establishment, error) {
	iter := s.client.Collection(establishmentsCollection).Where("city", "==", locationID).Documents(ctx)
	defer iter.Stop()

	list := []establishment.Establishment{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query establishments for %s: %w", locationID, err)
		}

		e, err := decodeEstablishment(doc)
		if err != nil {
			log.WithError(err).Warnf("Catalog: skipping establishment %s", doc.Ref.ID)
			continue
		}
		list = append(list, e)
	}

	return list, nil
}

func (s *FirestoreSource) EstablishmentByID(ctx context.Context, id string) (*establishment.Establishment, error) {
	doc, err := s.client.Collection(establishmentsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, notFoundOr(err, "establishment", id)
	}

	e, err := decodeEstablishment(doc)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *FirestoreSource) LocationByID(ctx context.Context, id string) (*establishment.Location, error) {
	doc, err := s.client.Collection(locationsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, notFoundOr(err, "location", id)
	}

	var d locationDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode location %s: %w", id, err)
	}

	l := &establishment.Location{
		ID:          doc.Ref.ID,
		Name:        d.Name,
		Country:     d.Country,
		Coordinates: decodeCoordinates(d.Coordinates),
	}
	l.Normalize()
	return l, nil
}

func (s *FirestoreSource) Categories(ctx context.Context) ([]establishment.Category, error) {
	iter := s.client.Collection(categoriesCollection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	list := []establishment.Category{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list categories: %w", err)
		}

		c, err := decodeCategory(doc)
		if err != nil {
			log.WithError(err).Warnf("Catalog: skipping category %s", doc.Ref.ID)
			continue
		}
		list = append(list, c)
	}

	return list, nil
}

func (s *FirestoreSource) CategoryByID(ctx context.Context, id string) (*establishment.Category, error) {
	doc, err := s.client.Collection(categoriesCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, notFoundOr(err, "category", id)
	}

	c, err := decodeCategory(doc)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeEstablishment(doc *firestore.DocumentSnapshot) (establishment.Establishment, error) {
	var d establishmentDoc
	if err := doc.DataTo(&d); err != nil {
		return establishment.Establishment{}, fmt.Errorf("failed to decode establishment %s: %w", doc.Ref.ID, err)
	}

	e := establishment.Establishment{
		ID:               doc.Ref.ID,
		Name:             d.Name,
		Address:          d.Address,
		City:             d.City,
		ShortDescription: d.ShortDescription,
		Description:      d.Description,
		Categories:       d.Categories,
		Subcategories:    d.Subcategories,
		Rating:           d.Rating,
		ReviewCount:      int(d.ReviewCount),
		FavoritesCount:   int(d.FavoritesCount),
		Coordinates:      decodeCoordinates(d.Coordinates),
		MainImage:        d.MainImage,
		Gallery:          d.Gallery,
		OpeningHours:     d.OpeningHours,
	}
	e.Normalize()
	return e, nil
}

func decodeCategory(doc *firestore.DocumentSnapshot) (establishment.Category, error) {
	var d categoryDoc
	if err := doc.DataTo(&d); err != nil {
		return establishment.Category{}, fmt.Errorf("failed to decode category %s: %w", doc.Ref.ID, err)
	}
	return establishment.Category{ID: doc.Ref.ID, Title: d.Title, Subcategories: d.Subcategories}, nil
}

// decodeCoordinates accepts either a GeoPoint or a {latitude, longitude} map.
// Anything else is treated as absent.
func decodeCoordinates(v interface{}) *establishment.Coordinates {
	switch c := v.(type) {
	case *latlng.LatLng:
		if c == nil {
			return nil
		}
		return &establishment.Coordinates{Latitude: c.GetLatitude(), Longitude: c.GetLongitude()}
	case map[string]interface{}:
		lat, okLat := toFloat(c["latitude"])
		lng, okLng := toFloat(c["longitude"])
		if !okLat || !okLng {
			return nil
		}
		return &establishment.Coordinates{Latitude: lat, Longitude: lng}
	default:
		return nil
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func notFoundOr(err error, kind, id string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %s: %w", kind, id, err)
}
