package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"goldenbookAPI/internal/types/establishment"
)

// Schema creates the catalog tables when they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS locations (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	country   TEXT NOT NULL DEFAULT '',
	latitude  DOUBLE PRECISION,
	longitude DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS categories (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	subcategories JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS establishments (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL,
	short_description TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	categories        TEXT[] NOT NULL DEFAULT '{}',
	subcategories     TEXT[] NOT NULL DEFAULT '{}',
	rating            DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count      INTEGER NOT NULL DEFAULT 0,
	favorites_count   INTEGER NOT NULL DEFAULT 0,
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	main_image        TEXT NOT NULL DEFAULT '',
	gallery           TEXT[] NOT NULL DEFAULT '{}',
	opening_hours     JSONB
);

CREATE INDEX IF NOT EXISTS establishments_city_idx ON establishments (city);
`

type PostgresSource struct {
	db *pgxpool.Pool
}

func NewPostgresSource(db *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{db: db}
}

// EnsureSchema applies Schema. It is safe to call on every start.
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return nil
}

const establishmentColumns = `
	id,
	name,
	address,
	city,
	short_description,
	description,
	COALESCE(categories, '{}') AS categories,
	COALESCE(subcategories, '{}') AS subcategories,
	rating,
	review_count,
	favorites_count,
	latitude,
	longitude,
	main_image,
	COALESCE(gallery, '{}') AS gallery,
	opening_hours
`

func (s *PostgresSource) EstablishmentsByLocation(ctx context.Context, locationID string) ([]establishment.Establishment, error) {
	query := `SELECT ` + establishmentColumns + ` FROM establishments WHERE city = $1 ORDER BY id`

	rows, err := s.db.Query(ctx, query, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query establishments for %s: %w", locationID, err)
	}
	defer rows.Close()

	list := []establishment.Establishment{}
	for rows.Next() {
		e, err := scanEstablishment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating establishments: %w", err)
	}

	return list, nil
}

func (s *PostgresSource) EstablishmentByID(ctx context.Context, id string) (*establishment.Establishment, error) {
	query := `SELECT ` + establishmentColumns + ` FROM establishments WHERE id = $1`

	e, err := scanEstablishment(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("establishment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresSource) LocationByID(ctx context.Context, id string) (*establishment.Location, error) {
	var (
		l        establishment.Location
		lat, lng *float64
	)

	err := s.db.QueryRow(ctx, `SELECT id, name, country, latitude, longitude FROM locations WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.Country, &lat, &lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location %s: %w", id, err)
	}

	l.Coordinates = pairCoordinates(lat, lng)
	l.Normalize()
	return &l, nil
}

func (s *PostgresSource) Categories(ctx context.Context) ([]establishment.Category, error) {
	rows, err := s.db.Query(ctx, `SELECT id, title, subcategories FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	list := []establishment.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return list, nil
}

func (s *PostgresSource) CategoryByID(ctx context.Context, id string) (*establishment.Category, error) {
	c, err := scanCategory(s.db.QueryRow(ctx, `SELECT id, title, subcategories FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanEstablishment(row pgx.Row) (establishment.Establishment, error) {
	var (
		e         establishment.Establishment
		lat, lng  *float64
		hoursJSON []byte
	)

	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Address,
		&e.City,
		&e.ShortDescription,
		&e.Description,
		&e.Categories,
		&e.Subcategories,
		&e.Rating,
		&e.ReviewCount,
		&e.FavoritesCount,
		&lat,
		&lng,
		&e.MainImage,
		&e.Gallery,
		&hoursJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("failed to scan establishment: %w", err)
	}

	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &e.OpeningHours); err != nil {
			return e, fmt.Errorf("failed to decode opening hours for %s: %w", e.ID, err)
		}
	}

	e.Coordinates = pairCoordinates(lat, lng)
	e.Normalize()
	return e, nil
}

func scanCategory(row pgx.Row) (establishment.Category, error) {
	var (
		c       establishment.Category
		subJSON []byte
	)

	if err := row.Scan(&c.ID, &c.Title, &subJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan category: %w", err)
	}

	if len(subJSON) > 0 {
		if err := json.Unmarshal(subJSON, &c.Subcategories); err != nil {
			return c, fmt.Errorf("failed to decode subcategories for %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// pairCoordinates treats a half-set or non-finite pair as absent.
// DOUBLE PRECISION columns accept 'NaN' and 'Infinity'.
func pairCoordinates(lat, lng *float64) *establishment.Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return establishment.FiniteOrNil(&establishment.Coordinates{Latitude: *lat, Longitude: *lng})
}
