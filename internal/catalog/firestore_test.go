package catalog

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmulatorClient connects to the Firestore emulator; the client library
// picks FIRESTORE_EMULATOR_HOST up on its own.
func newEmulatorClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	client, err := firestore.NewClient(context.Background(), "goldenbook-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestFirestoreSource(t *testing.T) {
	client := newEmulatorClient(t)
	ctx := context.Background()

	_, err := client.Collection(establishmentsCollection).Doc("fs-a").Set(ctx, map[string]interface{}{
		"name":          "CASA",
		"city":          "fs-porto",
		"categories":    []string{"gastronomy"},
		"subcategories": []string{"vegan"},
		"rating":        4,
		"reviewCount":   7,
		"coordinates":   map[string]interface{}{"latitude": 41.1, "longitude": -8.6},
	})
	require.NoError(t, err)
	_, err = client.Collection(establishmentsCollection).Doc("fs-b").Set(ctx, map[string]interface{}{
		"name": "Sparse",
		"city": "fs-porto",
	})
	require.NoError(t, err)
	_, err = client.Collection(categoriesCollection).Doc("fs-gastronomy").Set(ctx, map[string]interface{}{
		"title":         "Gastronomy",
		"subcategories": map[string]string{"vegan": "Vegan"},
	})
	require.NoError(t, err)

	src := NewFirestoreSource(client)

	list, err := src.EstablishmentsByLocation(ctx, "fs-porto")
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[string]int{}
	for i, e := range list {
		byID[e.ID] = i
	}
	a := list[byID["fs-a"]]
	assert.Equal(t, 4.0, a.Rating)
	assert.Equal(t, 7, a.ReviewCount)
	require.NotNil(t, a.Coordinates)

	b := list[byID["fs-b"]]
	assert.NotNil(t, b.Categories)
	assert.Zero(t, b.ReviewCount)
	assert.Nil(t, b.Coordinates)

	_, err = src.EstablishmentByID(ctx, "fs-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	cat, err := src.CategoryByID(ctx, "fs-gastronomy")
	require.NoError(t, err)
	assert.Equal(t, "Vegan", cat.Subcategories["vegan"])
}
