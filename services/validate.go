package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"swipehouse/models"
)

// Issue codes attached to records during validation. Hard-failure codes
// reject the record outright; the rest only lower its quality tier.
const (
	IssueMissingID       = "missing_id"
	IssueMissingTitle    = "missing_title"
	IssueInvalidCoords   = "invalid_coordinates"
	IssueInvalidPrice    = "invalid_price"
	IssuePriceOutlier    = "price_outlier"
	IssueSuspiciousBeds  = "suspicious_beds"
	IssueSuspiciousBaths = "suspicious_baths"
	IssueNoAddress       = "no_address"
	IssueNoBeds          = "no_beds"
	IssueNoPhotos        = "no_photos"
	IssueNoSqft          = "no_sqft"
)

// Service-area bounding box (NYC metro, loose). Records geolocated
// outside it are treated as having invalid coordinates even when the
// raw values are globally plausible.
const (
	boxLatMin = 40.4
	boxLatMax = 41.0
	boxLngMin = -74.3
	boxLngMax = -73.6
)

// Soft price bounds per mode. Prices outside these flag the record as an
// outlier without invalidating it.
var priceBounds = map[models.Mode]struct{ min, max float64 }{
	models.ModeRent: {500, 25000},
	models.ModeBuy:  {50000, 50000000},
}

// ValidCoordinate reports whether lat/lng are finite, within global
// range, and inside the service-area bounding box.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return false
	}
	return lat >= boxLatMin && lat <= boxLatMax && lng >= boxLngMin && lng <= boxLngMax
}

// ValidatePrice checks a price for the given mode. valid fails only for
// non-finite or non-positive values; outlier flags prices outside the
// mode's soft bounds without invalidating the record.
func ValidatePrice(price float64, mode models.Mode) (valid, outlier bool) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return false, false
	}
	bounds, ok := priceBounds[mode]
	if !ok {
		bounds = priceBounds[models.ModeRent]
	}
	return true, price < bounds.min || price > bounds.max
}

var priceJunkRegexp = regexp.MustCompile(`[$,\s]`)

// ParsePrice coerces a raw upstream price value (number or formatted
// string like "$2,350") to a positive float64. Returns 0 for anything
// unusable; it never fails.
func ParsePrice(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		n := v.Float()
		if !math.IsNaN(n) && !math.IsInf(n, 0) && n > 0 {
			return n
		}
	case gjson.String:
		cleaned := priceJunkRegexp.ReplaceAllString(v.String(), "")
		n, err := strconv.ParseFloat(cleaned, 64)
		if err == nil && !math.IsInf(n, 0) && n > 0 {
			return n
		}
	}
	return 0
}

// ValidationResult is the per-record outcome of the validator.
type ValidationResult struct {
	Valid   bool
	Quality models.Quality
	Issues  []string
}

// Reason joins the issue codes into the rejection-reason string.
func (r ValidationResult) Reason() string {
	return strings.Join(r.Issues, ", ")
}

var hardFailures = map[string]bool{
	IssueMissingID:     true,
	IssueMissingTitle:  true,
	IssueInvalidCoords: true,
	IssueInvalidPrice:  true,
}

// ValidateListing runs the full per-record check over a normalized
// listing. Hard failures (missing id, missing both title and address,
// invalid coordinates, invalid price) reject the record; outliers and
// sanity issues only tier it down.
func ValidateListing(l *models.Listing, mode models.Mode) ValidationResult {
	var issues []string

	if l.ID == "" {
		issues = append(issues, IssueMissingID)
	}
	if l.Title == "" && l.Address == "" {
		issues = append(issues, IssueMissingTitle)
	}
	if !ValidCoordinate(l.Lat, l.Lng) {
		issues = append(issues, IssueInvalidCoords)
	}

	valid, outlier := ValidatePrice(l.Price, mode)
	if !valid {
		issues = append(issues, IssueInvalidPrice)
	} else if outlier {
		issues = append(issues, IssuePriceOutlier)
	}

	if l.Beds < 0 || l.Beds > 20 {
		issues = append(issues, IssueSuspiciousBeds)
	}
	if l.Baths < 0 || l.Baths > 15 {
		issues = append(issues, IssueSuspiciousBaths)
	}

	hard := false
	for _, issue := range issues {
		if hardFailures[issue] {
			hard = true
			break
		}
	}

	quality := models.QualityHigh
	switch {
	case hard:
		quality = models.QualitySuspect
	case containsOutlier(issues):
		quality = models.QualityMedium
	case len(issues) > 0:
		quality = models.QualityLow
	}

	return ValidationResult{Valid: !hard, Quality: quality, Issues: issues}
}

func containsOutlier(issues []string) bool {
	for _, i := range issues {
		if strings.Contains(i, "outlier") {
			return true
		}
	}
	return false
}
