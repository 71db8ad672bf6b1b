package services

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"swipehouse/models"
	"swipehouse/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLogger() }

const fullRecord = `{
	"id": "nyc-1001",
	"formattedAddress": "55 W 26th St, New York, NY 10010",
	"latitude": 40.744, "longitude": -73.990,
	"price": 3400, "bedrooms": 2, "bathrooms": 1,
	"squareFootage": 780,
	"neighborhood": "NoMad",
	"photos": ["https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"],
	"petsAllowed": true, "hasWasherDryer": true, "hasElevator": true,
	"publicRemarks": "Bright two bedroom."
}`

func TestNormalizeFullRecord(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	l := n.FromRentcast(gjson.Parse(fullRecord), models.ModeRent)

	if l.ID != "nyc-1001" {
		t.Errorf("id = %q", l.ID)
	}
	if l.Address != "55 W 26th St, New York, NY 10010" {
		t.Errorf("address = %q", l.Address)
	}
	if l.Price != 3400 || l.Beds != 2 || l.Baths != 1 || l.Sqft != 780 {
		t.Errorf("numbers: price=%v beds=%v baths=%v sqft=%v", l.Price, l.Beds, l.Baths, l.Sqft)
	}
	if !l.Features.Pets || !l.Features.Laundry || !l.Features.Elevator {
		t.Errorf("features = %+v", l.Features)
	}
	if l.Features.Walkup {
		t.Error("walkup must be false when an elevator is reported")
	}
	if len(l.Images) != 1 || l.Images[0] != "https://cdn.example.com/a.jpg" {
		t.Errorf("images = %v; want first photo only", l.Images)
	}
	if l.DataQuality != models.QualityHigh {
		t.Errorf("quality = %s; want high for a complete record", l.DataQuality)
	}
	if l.Description != "Bright two bedroom." {
		t.Errorf("description = %q", l.Description)
	}
	if l.MatchScore < 50 || l.MatchScore > 99 {
		t.Errorf("match score %d out of range", l.MatchScore)
	}
	if l.CommuteMins != 0 {
		t.Errorf("commute should start at 0, got %d", l.CommuteMins)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := NewNormalizer(newTestLogger())

	first := n.FromRentcast(gjson.Parse(fullRecord), models.ModeRent)
	second := n.FromRentcast(gjson.Parse(fullRecord), models.ModeRent)

	if first.ID != second.ID {
		t.Errorf("id not stable: %q != %q", first.ID, second.ID)
	}
	if first.MatchScore != second.MatchScore {
		t.Errorf("match score not stable: %d != %d", first.MatchScore, second.MatchScore)
	}
	if first.Images[0] != second.Images[0] {
		t.Errorf("photo not stable: %q != %q", first.Images[0], second.Images[0])
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	raw := gjson.Parse(`{
		"id": "sparse-1",
		"addressLine1": "9 Orchard St", "city": "New York", "state": "NY", "zipCode": "10002",
		"latitude": 40.718, "longitude": -73.991,
		"rent": 2650, "beds": 1, "baths": 1
	}`)
	l := n.FromRentcast(raw, models.ModeRent)

	if l.Address != "9 Orchard St, New York, NY, 10002" {
		t.Errorf("address fallback join = %q", l.Address)
	}
	if l.Price != 2650 {
		t.Errorf("price should fall back to rent field, got %v", l.Price)
	}
	if l.Neighborhood != "New York" {
		t.Errorf("neighborhood should fall back to city, got %q", l.Neighborhood)
	}
	if l.Title != "For Rent · 9 Orchard St, New York, NY, 10002" {
		t.Errorf("synthetic title = %q", l.Title)
	}
	if len(l.Images) != 1 || !strings.Contains(l.Images[0], "images.unsplash.com") {
		t.Errorf("expected synthetic fallback photo, got %v", l.Images)
	}
	if !strings.Contains(l.ExternalURL, "google.com/maps/search") {
		t.Errorf("external url = %q", l.ExternalURL)
	}
}

func TestNormalizeBuyTitle(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	raw := gjson.Parse(`{"id":"s1","formattedAddress":"1 Wall St","latitude":40.707,"longitude":-74.011,"price":900000}`)
	l := n.FromRentcast(raw, models.ModeBuy)

	if l.Title != "For Sale · 1 Wall St" {
		t.Errorf("title = %q", l.Title)
	}
	if l.Type != models.ModeBuy {
		t.Errorf("type = %s", l.Type)
	}
}

func TestNormalizeJunkNumbersCoerceToZero(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	raw := gjson.Parse(`{"id":"junk-1","formattedAddress":"2 Broadway","latitude":"not-a-number","longitude":null,"price":{"amount":5},"bedrooms":"three"}`)
	l := n.FromRentcast(raw, models.ModeRent)

	if l.Lat != 0 || l.Lng != 0 || l.Price != 0 {
		t.Errorf("junk inputs must coerce to 0: lat=%v lng=%v price=%v", l.Lat, l.Lng, l.Price)
	}
	if l.DataQuality != models.QualitySuspect {
		t.Errorf("quality = %s; want suspect for unusable coordinates", l.DataQuality)
	}
}

func TestNormalizeWalkupPolicy(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	raw := gjson.Parse(`{"id":"w1","formattedAddress":"3 Ave B","latitude":40.724,"longitude":-73.983,"price":2100}`)
	l := n.FromRentcast(raw, models.ModeRent)

	if !l.Features.Walkup || l.Features.Elevator {
		t.Errorf("no elevator flag must imply walkup, got %+v", l.Features)
	}
}

func TestAssessQualityCompleteness(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		mode models.Mode
		want models.Quality
	}{
		{
			"two gaps is medium",
			`{"id":"q1","formattedAddress":"1 St Marks Pl","latitude":40.729,"longitude":-73.987,"price":2400,"bedrooms":1,"photos":[]}`,
			models.ModeRent,
			models.QualityMedium, // no photos, no sqft
		},
		{
			"three gaps is low",
			`{"id":"q2","latitude":40.729,"longitude":-73.987,"price":2400,"bedrooms":1}`,
			models.ModeRent,
			models.QualityLow, // no address, no photos, no sqft
		},
		{
			"outlier price counts as an issue",
			`{"id":"q3","formattedAddress":"2 St Marks Pl","latitude":40.729,"longitude":-73.987,"price":30000,"bedrooms":1,"photos":["x"],"squareFootage":900}`,
			models.ModeRent,
			models.QualityMedium,
		},
		{
			"invalid price is suspect",
			`{"id":"q4","formattedAddress":"3 St Marks Pl","latitude":40.729,"longitude":-73.987,"price":0}`,
			models.ModeRent,
			models.QualitySuspect,
		},
	}

	n := NewNormalizer(newTestLogger())
	for _, tt := range tests {
		l := n.FromRentcast(gjson.Parse(tt.raw), tt.mode)
		if l.DataQuality != tt.want {
			t.Errorf("%s: quality = %s; want %s", tt.name, l.DataQuality, tt.want)
		}
	}
}
