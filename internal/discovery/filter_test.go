package discovery

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"goldenbookAPI/internal/types/establishment"
)

func TestByCategory(t *testing.T) {
	list := portoFixture()

	got := ByCategory(list, "gastronomy")
	assert.Equal(t, []string{"g1", "g2", "g3"}, ids(got))

	none := ByCategory(list, "museums")
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestBySubcategory_EmptyIsIdentity(t *testing.T) {
	list := portoFixture()

	got := BySubcategory(list, "")
	assert.Equal(t, ids(list), ids(got))

	got[0].Name = "mutated"
	assert.Equal(t, "Tasca do Porto", list[0].Name, "result must not alias the input")
}

func TestBySubcategory(t *testing.T) {
	got := BySubcategory(portoFixture(), "traditional")
	assert.Equal(t, []string{"g1", "g3"}, ids(got))
}

func TestByNameSubstring(t *testing.T) {
	list := []establishment.Establishment{
		est("1", "Casa Velha", 0, 0, nil, nil),
		est("2", "O Chefe", 0, 0, nil, nil),
		est("3", "Casa Nova", 0, 0, nil, nil),
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"prefix keeps input order", "cas", []string{"1", "3"}},
		{"case insensitive", "CASA", []string{"1", "3"}},
		{"trimmed", "  chefe ", []string{"2"}},
		{"inner substring", "nov", []string{"3"}},
		{"no match", "zzz", []string{}},
		{"empty query", "", []string{}},
		{"whitespace query", "   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ByNameSubstring(list, tt.query)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestForMap(t *testing.T) {
	list := []establishment.Establishment{
		withCoords(est("ok", "Ok", 0, 0, nil, nil), 41.15, -8.61),
		withCoords(est("lat95", "Bad lat", 0, 0, nil, nil), 95, -8.61),
		withCoords(est("lon200", "Bad lon", 0, 0, nil, nil), 41, 200),
		withCoords(est("nan", "NaN", 0, 0, nil, nil), math.NaN(), 1),
		est("none", "No coords", 0, 0, nil, nil),
	}

	assert.Equal(t, []string{"ok"}, ids(ForMap(list)))
}
