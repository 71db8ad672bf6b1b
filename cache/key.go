package cache

import (
	"encoding/json"

	"swipehouse/models"
)

// StableKey canonicalizes a filter set into a cache key. Only non-empty
// fields participate and keys are emitted in sorted order, so two filter
// objects that differ only in field insertion order or in empty optional
// fields map to the same key.
func StableKey(f models.Filters) string {
	fields := map[string]any{}

	if f.Mode != "" {
		fields["mode"] = string(f.Mode)
	}
	for k, v := range map[string]string{
		"city":      f.City,
		"state":     f.State,
		"latitude":  f.Latitude,
		"longitude": f.Longitude,
		"radius":    f.Radius,
		"price":     f.Price,
		"bedrooms":  f.Bedrooms,
		"bathrooms": f.Bathrooms,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	if f.Limit != 0 {
		fields["limit"] = f.Limit
	}
	if f.Offset != 0 {
		fields["offset"] = f.Offset
	}

	// json.Marshal writes map keys in sorted order, which is exactly the
	// canonical form we need.
	b, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(b)
}
