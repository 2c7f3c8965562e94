package establishment

import "goldenbookAPI/utils"

// EstablishmentResponse is what the app renders on cards and detail screens.
type EstablishmentResponse struct {
	Establishment
	DisplayName     string `json:"display_name"`
	PrimaryCategory string `json:"primary_category"`
	Mappable        bool   `json:"mappable"`
}

func (e Establishment) Response() EstablishmentResponse {
	out := e.Clone()
	out.MainImage = utils.DirectImageURL(e.MainImage)
	out.Gallery = utils.DirectImageURLs(e.Gallery)
	out.Coordinates = FiniteOrNil(out.Coordinates)

	return EstablishmentResponse{
		Establishment:   out,
		DisplayName:     e.DisplayName(),
		PrimaryCategory: e.PrimaryCategory(),
		Mappable:        e.HasValidCoordinates(),
	}
}

func Responses(list []Establishment) []EstablishmentResponse {
	out := make([]EstablishmentResponse, 0, len(list))
	for _, e := range list {
		out = append(out, e.Response())
	}
	return out
}
