package services

import (
	"context"
	"log/slog"
	"strings"

	"booking/models"
)

// InputKind is the syntactic class of a free-text location.
type InputKind int

const (
	FullAddress InputKind = iota
	ZipCode
)

func (k InputKind) String() string {
	if k == ZipCode {
		return "zip_code"
	}
	return "full_address"
}

const (
	geocodeStatusOK = "OK"

	componentPostalCode = "postal_code"
	componentLocality   = "locality"
	componentCounty     = "administrative_area_level_2"
	componentState      = "administrative_area_level_1"
)

// Geocoder resolves a free-text location through an external provider.
type Geocoder interface {
	Geocode(ctx context.Context, req GeocodeRequest) (GeocodeResponse, error)
}

// GeocodeRequest restricts the lookup to Country when it is non-empty.
type GeocodeRequest struct {
	Address string
	Country string
}

type GeocodeResponse struct {
	Status       string          `json:"status"`
	Results      []GeocodeResult `json:"results"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type GeocodeResult struct {
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          GeocodeGeometry    `json:"geometry"`
	PlaceID           string             `json:"place_id"`
	AddressComponents []AddressComponent `json:"address_components"`
}

type GeocodeGeometry struct {
	Location models.Coordinates `json:"location"`
}

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

func (c AddressComponent) hasType(t string) bool {
	for _, ct := range c.Types {
		if ct == t {
			return true
		}
	}
	return false
}

// ClassifyInput treats 5 or 9 digits, ignoring hyphens, as a zip code and
// everything else as a full address. A bare 5-digit house number is
// misclassified as a zip code.
func ClassifyInput(raw string) InputKind {
	digits := strings.ReplaceAll(raw, "-", "")
	if len(digits) != 5 && len(digits) != 9 {
		return FullAddress
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return FullAddress
		}
	}
	return ZipCode
}

// LocationValidator turns geocoding results into LocationRecords. It never
// returns provider errors: every failure is reported as ErrLocationNotFound.
type LocationValidator struct {
	geocoder       Geocoder
	defaultCountry string
	logger         *slog.Logger
}

// NewLocationValidator creates a validator. Pass nil logger for default.
func NewLocationValidator(geocoder Geocoder, defaultCountry string, logger *slog.Logger) *LocationValidator {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultCountry == "" {
		defaultCountry = "US"
	}
	return &LocationValidator{
		geocoder:       geocoder,
		defaultCountry: defaultCountry,
		logger:         logger.With("component", "location_validator"),
	}
}

// Validate classifies raw and dispatches to the matching validation.
func (v *LocationValidator) Validate(ctx context.Context, raw string) (models.LocationRecord, InputKind, error) {
	kind := ClassifyInput(raw)
	if kind == ZipCode {
		loc, err := v.ValidateZipCode(ctx, raw, v.defaultCountry)
		return loc, kind, err
	}
	loc, err := v.ValidateFullAddress(ctx, raw)
	return loc, kind, err
}

// ValidateFullAddress accepts the provider's first result as canonical.
func (v *LocationValidator) ValidateFullAddress(ctx context.Context, raw string) (models.LocationRecord, error) {
	result, ok := v.lookup(ctx, GeocodeRequest{Address: raw})
	if !ok {
		return models.LocationRecord{}, ErrLocationNotFound
	}
	return newLocationRecord(result), nil
}

// ValidateZipCode succeeds only when the first result carries a postal_code
// component whose long or short name equals raw exactly. A result for a
// neighbouring zip is a failure.
func (v *LocationValidator) ValidateZipCode(ctx context.Context, raw, country string) (models.LocationRecord, error) {
	if country == "" {
		country = v.defaultCountry
	}
	result, ok := v.lookup(ctx, GeocodeRequest{Address: raw + ", " + country, Country: country})
	if !ok {
		return models.LocationRecord{}, ErrLocationNotFound
	}
	if !hasPostalCode(result.AddressComponents, raw) {
		v.logger.Info("postal code mismatch", "input", raw, "formatted_address", result.FormattedAddress)
		return models.LocationRecord{}, ErrLocationNotFound
	}
	loc := newLocationRecord(result)
	loc.PostalCode = raw
	return loc, nil
}

func (v *LocationValidator) lookup(ctx context.Context, req GeocodeRequest) (GeocodeResult, bool) {
	resp, err := v.geocoder.Geocode(ctx, req)
	if err != nil {
		v.logger.Warn("geocoding request failed", "address", req.Address, "error", err)
		return GeocodeResult{}, false
	}
	if resp.Status != geocodeStatusOK || len(resp.Results) == 0 {
		v.logger.Info("geocoding returned no match",
			"address", req.Address,
			"status", resp.Status,
			"error_message", resp.ErrorMessage)
		return GeocodeResult{}, false
	}
	return resp.Results[0], true
}

func hasPostalCode(components []AddressComponent, zip string) bool {
	for _, c := range components {
		if c.hasType(componentPostalCode) && (c.LongName == zip || c.ShortName == zip) {
			return true
		}
	}
	return false
}

func newLocationRecord(result GeocodeResult) models.LocationRecord {
	return models.LocationRecord{
		FormattedAddress: result.FormattedAddress,
		Coordinates:      result.Geometry.Location,
		PlaceID:          result.PlaceID,
		City:             extractCity(result.AddressComponents),
		State:            extractState(result.AddressComponents),
	}
}

// extractCity prefers a locality and falls back to the county.
func extractCity(components []AddressComponent) string {
	for _, c := range components {
		if c.hasType(componentLocality) {
			return c.LongName
		}
	}
	for _, c := range components {
		if c.hasType(componentCounty) {
			return c.LongName
		}
	}
	return ""
}

func extractState(components []AddressComponent) string {
	for _, c := range components {
		if c.hasType(componentState) {
			return c.ShortName
		}
	}
	return ""
}
