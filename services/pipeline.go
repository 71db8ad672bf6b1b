package services

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"swipehouse/models"
	"swipehouse/utils"
)

// Pipeline runs the full validation pass over a raw upstream batch:
// normalize each record, reject hard failures with reasons, grade the
// survivors, then deduplicate.
type Pipeline struct {
	normalizer *Normalizer
	logger     *utils.Logger
}

// NewPipeline creates a Pipeline with the given logger.
func NewPipeline(logger *utils.Logger) *Pipeline {
	return &Pipeline{
		normalizer: NewNormalizer(logger),
		logger:     logger,
	}
}

// PipelineResult is the outcome of one ValidateAndFilter pass.
type PipelineResult struct {
	Accepted []*models.Listing
	Rejected []models.Rejection
	Stats    models.PipelineStats
}

// ExtractRecords pulls the record array out of a raw upstream response
// body, which may be a bare array or an object with a "listings" field.
// Malformed bodies yield an empty slice, never an error.
func ExtractRecords(payload []byte) []gjson.Result {
	if !gjson.ValidBytes(payload) {
		return nil
	}
	root := gjson.ParseBytes(payload)
	if root.IsArray() {
		return root.Array()
	}
	if listings := root.Get("listings"); listings.IsArray() {
		return listings.Array()
	}
	return nil
}

// ValidateAndFilter normalizes and validates every record for the given
// mode, rejecting hard failures and deduplicating the accepted set.
// accepted+rejected always equals the input count before dedup; the
// dedup removals are reported separately in Stats.
func (p *Pipeline) ValidateAndFilter(records []gjson.Result, mode models.Mode) PipelineResult {
	accepted := make([]*models.Listing, 0, len(records))
	rejected := make([]models.Rejection, 0)
	var counts struct{ high, medium, low int }

	for _, raw := range records {
		listing := p.normalizer.FromRentcast(raw, mode)
		result := ValidateListing(listing, mode)

		if !result.Valid {
			rejected = append(rejected, models.Rejection{
				Record: json.RawMessage(raw.Raw),
				Reason: result.Reason(),
			})
			continue
		}

		// The normalizer grades on completeness, the validator on field
		// sanity; keep the worse of the two.
		listing.DataQuality = worseQuality(listing.DataQuality, result.Quality)

		switch listing.DataQuality {
		case models.QualityHigh:
			counts.high++
		case models.QualityMedium:
			counts.medium++
		default:
			counts.low++
		}
		accepted = append(accepted, listing)
	}

	deduped := Deduplicate(accepted)
	dedupedCount := len(accepted) - len(deduped)

	p.logger.Info("[pipeline] %d records → %d accepted, %d rejected, %d deduped",
		len(records), len(deduped), len(rejected), dedupedCount)

	return PipelineResult{
		Accepted: deduped,
		Rejected: rejected,
		Stats: models.PipelineStats{
			Total:         len(records),
			Accepted:      len(deduped),
			Rejected:      len(rejected),
			HighQuality:   counts.high,
			MediumQuality: counts.medium,
			LowQuality:    counts.low,
			DedupedCount:  dedupedCount,
		},
	}
}

// FilterLocally narrows an accepted set against UI-side constraints
// without another upstream query.
func FilterLocally(listings []*models.Listing, f models.LocalFilters) []*models.Listing {
	out := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if f.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

var qualityRank = map[models.Quality]int{
	models.QualityHigh:    0,
	models.QualityMedium:  1,
	models.QualityLow:     2,
	models.QualitySuspect: 3,
}

func worseQuality(a, b models.Quality) models.Quality {
	if qualityRank[b] > qualityRank[a] {
		return b
	}
	return a
}
