package establishment

import "sort"

type Subcategory struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Category carries its subcategories as an id -> title map, the way the
// catalog stores them.
type Category struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Subcategories map[string]string `json:"-"`
}

// SubcategoryList unpacks the subcategory map into an ordered list, sorted by id.
func (c Category) SubcategoryList() []Subcategory {
	list := make([]Subcategory, 0, len(c.Subcategories))
	for id, title := range c.Subcategories {
		list = append(list, Subcategory{ID: id, Title: title})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

type CategoryResponse struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Subcategories []Subcategory `json:"subcategories"`
}

func (c Category) Response() CategoryResponse {
	return CategoryResponse{
		ID:            c.ID,
		Title:         c.Title,
		Subcategories: c.SubcategoryList(),
	}
}

type Location struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Normalize drops coordinates that cannot be encoded.
func (l *Location) Normalize() {
	l.Coordinates = FiniteOrNil(l.Coordinates)
}
