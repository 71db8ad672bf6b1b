package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"swipehouse/models"
)

// DedupeKey fingerprints a listing for near-duplicate detection:
// coordinates rounded to 4 decimal places (~10m), price rounded to the
// nearest 50 currency units, and the first 20 alphanumeric lowercase
// characters of the address. This is a heuristic, not an exact match:
// two genuinely distinct units in the same building listed at similar
// prices can collapse into one, and that is an accepted risk.
func DedupeKey(l *models.Listing) string {
	latRound := math.Round(l.Lat*10000) / 10000
	lngRound := math.Round(l.Lng*10000) / 10000
	priceRound := math.Round(l.Price/50) * 50

	var b strings.Builder
	for _, r := range strings.ToLower(l.Address) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= 20 {
				break
			}
		}
	}

	return fmt.Sprintf("%s|%s|%s|%s",
		strconv.FormatFloat(latRound, 'f', -1, 64),
		strconv.FormatFloat(lngRound, 'f', -1, 64),
		strconv.FormatFloat(priceRound, 'f', -1, 64),
		b.String())
}

// Deduplicate removes near-duplicate listings, preserving first-seen
// order. The first occurrence of each dedupe key wins. Idempotent:
// running it on its own output is a no-op.
func Deduplicate(listings []*models.Listing) []*models.Listing {
	seen := make(map[string]struct{}, len(listings))
	result := make([]*models.Listing, 0, len(listings))

	for _, l := range listings {
		key := DedupeKey(l)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, l)
	}

	return result
}
