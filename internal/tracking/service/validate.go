package service

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// ParseUpdate normalizes a raw driver payload into numeric coordinates.
// Latitude and longitude may arrive as JSON numbers or as strings; anything
// that does not resolve to a finite float is rejected.
func ParseUpdate(raw domain.RawUpdate) (domain.VehicleLocation, error) {
	if raw.VehicleID == "" {
		return domain.VehicleLocation{}, &domain.ValidationError{Kind: domain.KindMissingField, Field: "vehicle_id"}
	}

	lat, err := coordinate("latitude", raw.Latitude)
	if err != nil {
		return domain.VehicleLocation{}, err
	}
	lng, err := coordinate("longitude", raw.Longitude)
	if err != nil {
		return domain.VehicleLocation{}, err
	}

	return domain.VehicleLocation{
		VehicleID: raw.VehicleID,
		Latitude:  lat,
		Longitude: lng,
	}, nil
}

func coordinate(field string, value any) (float64, error) {
	if value == nil {
		return 0, &domain.ValidationError{Kind: domain.KindMissingField, Field: field}
	}

	var parsed float64
	switch v := value.(type) {
	case float64:
		parsed = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, &domain.ValidationError{Kind: domain.KindNotNumeric, Field: field}
		}
		parsed = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, &domain.ValidationError{Kind: domain.KindNotNumeric, Field: field}
		}
		parsed = f
	default:
		return 0, &domain.ValidationError{Kind: domain.KindNotNumeric, Field: field}
	}

	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, &domain.ValidationError{Kind: domain.KindNotNumeric, Field: field}
	}
	return parsed, nil
}
