package models

// Filters is the query shape the UI layer feeds the core. Range fields
// use "min-max" strings (e.g. "2200-5200") matching the upstream proxy
// convention; empty optional fields are dropped before cache-key
// computation.
type Filters struct {
	Mode      Mode   `json:"mode"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
	Radius    string `json:"radius,omitempty"`
	Price     string `json:"price,omitempty"`
	Bedrooms  string `json:"bedrooms,omitempty"`
	Bathrooms string `json:"bathrooms,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// DefaultFilters covers the five boroughs with a wide net: fetch more
// than the UI needs and filter locally to protect upstream quota.
func DefaultFilters() Filters {
	return Filters{
		Mode:      ModeRent,
		Latitude:  "40.7128",
		Longitude: "-74.0060",
		Radius:    "15",
		Price:     "2200-5200",
		Bedrooms:  "1-3",
		Bathrooms: "1-2",
		Limit:     50,
	}
}

// LocalFilters narrows an already-fetched listing set without touching
// the network. Zero values mean "no constraint".
type LocalFilters struct {
	PriceMin float64
	PriceMax float64
	BedsMin  float64
	BedsMax  float64
	BathsMin float64
	BathsMax float64

	PetsRequired     bool
	LaundryRequired  bool
	ElevatorRequired bool
	NoWalkup         bool
}

// Match reports whether the listing satisfies every set constraint.
func (f LocalFilters) Match(l *Listing) bool {
	if f.PriceMin > 0 && l.Price < f.PriceMin {
		return false
	}
	if f.PriceMax > 0 && l.Price > f.PriceMax {
		return false
	}
	if f.BedsMin > 0 && l.Beds < f.BedsMin {
		return false
	}
	if f.BedsMax > 0 && l.Beds > f.BedsMax {
		return false
	}
	if f.BathsMin > 0 && l.Baths < f.BathsMin {
		return false
	}
	if f.BathsMax > 0 && l.Baths > f.BathsMax {
		return false
	}
	if f.PetsRequired && !l.Features.Pets {
		return false
	}
	if f.LaundryRequired && !l.Features.Laundry {
		return false
	}
	if f.ElevatorRequired && !l.Features.Elevator {
		return false
	}
	if f.NoWalkup && l.Features.Walkup {
		return false
	}
	return true
}
