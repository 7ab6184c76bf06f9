package models

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationRecord is a normalized, successfully geocoded location.
// PostalCode is only set when the location was validated by zip code.
type LocationRecord struct {
	FormattedAddress string      `json:"formatted_address"`
	Coordinates      Coordinates `json:"location"`
	PlaceID          string      `json:"place_id"`
	PostalCode       string      `json:"zip_code,omitempty"`
	City             string      `json:"city,omitempty"`
	State            string      `json:"state,omitempty"`
}
