package services

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"swipehouse/models"
	"swipehouse/utils"
)

const (
	sourceRentcast  = "rentcast"
	fallbackPhotoFm = "https://images.unsplash.com/photo-1560448204-e02f11c3d0e2?w=1200&h=800&fit=crop&q=80&sig=%d"
)

// Normalizer maps raw upstream listing records of unspecified shape
// into the internal Listing type. All derived fields are deterministic
// functions of the record, so re-normalizing an unchanged record is
// idempotent.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// toNumber coerces any upstream value to a float64, 0 for junk.
func toNumber(v gjson.Result) float64 {
	if v.Type != gjson.Number && v.Type != gjson.String {
		return 0
	}
	n := v.Float()
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// firstSet returns the first field on the record that is present and
// non-empty, mirroring upstream schema drift (fields come and go
// between API versions).
func firstSet(raw gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		v := raw.Get(p)
		if truthy(v) {
			return v
		}
	}
	return gjson.Result{}
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Number:
		return v.Float() != 0
	case gjson.String:
		return v.String() != ""
	case gjson.True:
		return true
	case gjson.JSON:
		return !v.IsArray() || len(v.Array()) > 0
	default:
		return false
	}
}

// FromRentcast normalizes one raw record for the given mode. It never
// fails: unusable fields coerce to zero values and surface later as
// validation issues or a lowered quality tier.
func (n *Normalizer) FromRentcast(raw gjson.Result, mode models.Mode) *models.Listing {
	lat := toNumber(raw.Get("latitude"))
	lng := toNumber(raw.Get("longitude"))
	price := toNumber(firstSet(raw, "price", "rent"))

	address := raw.Get("formattedAddress").String()
	if address == "" {
		parts := make([]string, 0, 4)
		for _, p := range []string{"addressLine1", "city", "state", "zipCode"} {
			if v := raw.Get(p); truthy(v) {
				parts = append(parts, v.String())
			}
		}
		address = strings.TrimSpace(strings.Join(parts, ", "))
	}

	neighborhood := firstSet(raw, "neighborhood", "subdivision", "city", "county").String()

	title := firstSet(raw, "listingTitle", "propertyDescription").String()
	if title == "" && address != "" {
		if mode == models.ModeBuy {
			title = "For Sale · " + address
		} else {
			title = "For Rent · " + address
		}
	}

	description := firstSet(raw, "publicRemarks", "description", "propertyDescription").String()

	externalURL := mapsSearchURL(address, lat, lng)

	seed := raw.Get("id").String()
	if seed == "" {
		seed = address
	}
	if seed == "" {
		seed = fmt.Sprintf("%s-%s-%s", formatCoord(lat), formatCoord(lng), mode)
	}
	r := utils.SeededRandom(seed)

	photos := raw.Get("photos")
	var images []string
	if photos.IsArray() && len(photos.Array()) > 0 {
		images = []string{photos.Array()[0].String()}
	} else {
		images = []string{fmt.Sprintf(fallbackPhotoFm, int(math.Abs(math.Round(r*100000))))}
	}

	matchScore := int(math.Round(60 + r*30))
	if matchScore > 99 {
		matchScore = 99
	}
	if matchScore < 50 {
		matchScore = 50
	}

	id := raw.Get("id").String()
	if id == "" {
		// No upstream identifier: derive one that survives refetches of
		// the same record instead of minting a random suffix.
		id = fmt.Sprintf("%s-%s-%s-%d", formatCoord(lat), formatCoord(lng), mode, int(price))
	}

	elevator := raw.Get("hasElevator").Bool()

	why := "Based on your filters"
	if neighborhood != "" {
		why = "Based on your filters in " + neighborhood
	}

	return &models.Listing{
		ID:           id,
		Address:      address,
		Title:        title,
		Neighborhood: neighborhood,
		Description:  description,
		Price:        price,
		Beds:         toNumber(firstSet(raw, "bedrooms", "beds")),
		Baths:        toNumber(firstSet(raw, "bathrooms", "baths")),
		Sqft:         toNumber(firstSet(raw, "squareFootage", "lotSize")),
		Lat:          lat,
		Lng:          lng,
		CommuteMins:  0,
		Features: models.Features{
			Pets:     raw.Get("petsAllowed").Bool(),
			Laundry:  raw.Get("hasWasherDryer").Bool() || raw.Get("hasLaundry").Bool(),
			Elevator: elevator,
			// Walkup is assumed whenever no elevator is reported. A policy
			// choice, not a measured fact.
			Walkup: !elevator,
		},
		Images:      images,
		MatchScore:  matchScore,
		Why:         why,
		DataQuality: assessQuality(raw, lat, lng, price, mode),
		Type:        mode,
		ExternalURL: externalURL,
		AgentURL:    firstSet(raw, "listingAgent.website", "listingAgent.email").String(),
		OfficeURL:   raw.Get("listingOffice.website").String(),
		Source:      sourceRentcast,
		CreatedAt:   time.Now(),
	}
}

// assessQuality grades a raw record on validity and completeness.
// Invalid coordinates or price make it suspect outright; otherwise the
// issue count decides the tier (0 high, 1–2 medium, 3+ low).
func assessQuality(raw gjson.Result, lat, lng, price float64, mode models.Mode) models.Quality {
	if !ValidCoordinate(lat, lng) {
		return models.QualitySuspect
	}

	valid, outlier := ValidatePrice(price, mode)
	if !valid {
		return models.QualitySuspect
	}

	var issues int
	if outlier {
		issues++
	}
	if !truthy(raw.Get("formattedAddress")) && !truthy(raw.Get("addressLine1")) {
		issues++
	}
	if !truthy(raw.Get("bedrooms")) && !truthy(raw.Get("beds")) {
		issues++
	}
	photos := raw.Get("photos")
	if !photos.IsArray() || len(photos.Array()) == 0 {
		issues++
	}
	if !truthy(raw.Get("squareFootage")) {
		issues++
	}

	switch {
	case issues == 0:
		return models.QualityHigh
	case issues <= 2:
		return models.QualityMedium
	default:
		return models.QualityLow
	}
}

func mapsSearchURL(address string, lat, lng float64) string {
	query := address
	if query == "" {
		query = fmt.Sprintf("%s,%s", formatCoord(lat), formatCoord(lng))
	}
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(query)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
