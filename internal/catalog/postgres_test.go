package catalog

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("test database unreachable: %v", err)
	}
	t.Cleanup(pool.Close)

	require.NoError(t, NewPostgresSource(pool).EnsureSchema(ctx))
	return pool
}

func TestPostgresSource(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	src := NewPostgresSource(pool)

	_, err := pool.Exec(ctx, `
		INSERT INTO locations (id, name, country) VALUES ('test-porto', 'Porto', 'PT')
		ON CONFLICT (id) DO NOTHING;
		INSERT INTO categories (id, title, subcategories) VALUES ('test-gastronomy', 'Gastronomy', '{"vegan":"Vegan"}')
		ON CONFLICT (id) DO NOTHING;
		INSERT INTO establishments (id, name, city, categories, subcategories, rating, review_count, latitude, longitude, opening_hours)
		VALUES
			('test-a', 'A', 'test-porto', '{test-gastronomy}', '{vegan,vegan}', 4.5, 3, 41.1, -8.6, '{"mon":"9-18"}'),
			('test-b', 'B', 'test-porto', '{}', '{}', 3, 0, 41.1, NULL, NULL)
		ON CONFLICT (id) DO NOTHING;
	`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `
			DELETE FROM establishments WHERE id LIKE 'test-%';
			DELETE FROM categories WHERE id LIKE 'test-%';
			DELETE FROM locations WHERE id LIKE 'test-%';
		`)
	})

	list, err := src.EstablishmentsByLocation(ctx, "test-porto")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"vegan"}, list[0].Subcategories)
	assert.Equal(t, "9-18", list[0].OpeningHours["mon"])
	require.NotNil(t, list[0].Coordinates)
	assert.Nil(t, list[1].Coordinates, "half-set coordinates are absent")

	_, err = src.EstablishmentByID(ctx, "test-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	loc, err := src.LocationByID(ctx, "test-porto")
	require.NoError(t, err)
	assert.Nil(t, loc.Coordinates)

	cat, err := src.CategoryByID(ctx, "test-gastronomy")
	require.NoError(t, err)
	assert.Equal(t, "Vegan", cat.Subcategories["vegan"])
}
