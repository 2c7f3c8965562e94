package establishment

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"  firestore:"latitude"`
	Longitude float64 `json:"longitude" firestore:"longitude"`
}

// Finite reports whether neither value is NaN or infinite. JSON cannot carry
// anything else.
func (c Coordinates) Finite() bool {
	return !math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude) &&
		!math.IsInf(c.Latitude, 0) && !math.IsInf(c.Longitude, 0)
}

// Valid reports whether both values are finite and inside the geographic range.
func (c Coordinates) Valid() bool {
	if !c.Finite() {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// FiniteOrNil drops coordinates that cannot be encoded. Finite but out of
// range pairs are kept and only fail Valid.
func FiniteOrNil(c *Coordinates) *Coordinates {
	if c == nil || !c.Finite() {
		return nil
	}
	return c
}

type Establishment struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Address          string            `json:"address"`
	City             string            `json:"city"`
	ShortDescription string            `json:"short_description"`
	Description      string            `json:"description"`
	Categories       []string          `json:"categories"`
	Subcategories    []string          `json:"subcategories"`
	Rating           float64           `json:"rating"`
	ReviewCount      int               `json:"review_count"`
	FavoritesCount   int               `json:"favorites_count"`
	Coordinates      *Coordinates      `json:"coordinates,omitempty"`
	MainImage        string            `json:"main_image"`
	Gallery          []string          `json:"gallery"`
	OpeningHours     map[string]string `json:"opening_hours,omitempty"`
}

// Normalize applies the defaulting rules for fields a catalog record may omit.
// Slices are never nil, subcategories are de-duplicated and counters never
// negative. NaN or infinite coordinates are dropped.
func (e *Establishment) Normalize() {
	if e.Categories == nil {
		e.Categories = []string{}
	}
	e.Subcategories = dedupe(e.Subcategories)
	if e.Gallery == nil {
		e.Gallery = []string{}
	}
	if e.ReviewCount < 0 {
		e.ReviewCount = 0
	}
	if e.FavoritesCount < 0 {
		e.FavoritesCount = 0
	}
	if math.IsNaN(e.Rating) || math.IsInf(e.Rating, 0) {
		e.Rating = 0
	}
	e.Coordinates = FiniteOrNil(e.Coordinates)
}

// DisplayName capitalizes the first letter of the name and lowercases the rest.
func (e Establishment) DisplayName() string {
	return DisplayCase(e.Name)
}

// PrimaryCategory is the first category id, used for display badges.
func (e Establishment) PrimaryCategory() string {
	if len(e.Categories) == 0 {
		return ""
	}
	return e.Categories[0]
}

func (e Establishment) HasCategory(categoryID string) bool {
	for _, c := range e.Categories {
		if c == categoryID {
			return true
		}
	}
	return false
}

func (e Establishment) HasSubcategory(subcategoryID string) bool {
	for _, s := range e.Subcategories {
		if s == subcategoryID {
			return true
		}
	}
	return false
}

// HasValidCoordinates gates map-bound views. Missing, NaN or out of range
// coordinates exclude the establishment from the map but not from lists.
func (e Establishment) HasValidCoordinates() bool {
	return e.Coordinates != nil && e.Coordinates.Valid()
}

// Clone returns a copy that shares no slices or maps with e.
func (e Establishment) Clone() Establishment {
	out := e
	out.Categories = append([]string(nil), e.Categories...)
	out.Subcategories = append([]string(nil), e.Subcategories...)
	out.Gallery = append([]string(nil), e.Gallery...)
	if e.Coordinates != nil {
		c := *e.Coordinates
		out.Coordinates = &c
	}
	if e.OpeningHours != nil {
		out.OpeningHours = make(map[string]string, len(e.OpeningHours))
		for k, v := range e.OpeningHours {
			out.OpeningHours[k] = v
		}
	}
	return out
}

func DisplayCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
