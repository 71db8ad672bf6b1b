package services

import (
	"sort"

	"swipehouse/models"
	"swipehouse/utils"
)

// InsightReport is the aggregate view over one accepted listing set,
// served alongside the query result.
type InsightReport struct {
	TotalListings int     `json:"totalListings"`
	AveragePrice  float64 `json:"averagePrice"`
	MinPrice      float64 `json:"minPrice"`
	MaxPrice      float64 `json:"maxPrice"`

	MostExpensive *models.Listing   `json:"mostExpensive,omitempty"`
	TopMatches    []*models.Listing `json:"topMatches,omitempty"`

	ByNeighborhood map[string]int         `json:"byNeighborhood"`
	ByQuality      map[models.Quality]int `json:"byQuality"`
}

// InsightService computes aggregate stats over an accepted listing set.
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates an InsightService with the given logger.
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate builds the report. Listings with zero price are excluded
// from price statistics but still counted elsewhere.
func (s *InsightService) Generate(listings []*models.Listing) *InsightReport {
	report := &InsightReport{
		ByNeighborhood: make(map[string]int),
		ByQuality:      make(map[models.Quality]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var priced []*models.Listing
	for _, l := range listings {
		if l.Price > 0 {
			priced = append(priced, l)
		}
		if l.Neighborhood != "" {
			report.ByNeighborhood[l.Neighborhood]++
		}
		report.ByQuality[l.DataQuality]++
	}

	if len(priced) > 0 {
		report.MinPrice = priced[0].Price
		report.MaxPrice = priced[0].Price
		report.MostExpensive = priced[0]
		var total float64
		for _, l := range priced {
			total += l.Price
			if l.Price < report.MinPrice {
				report.MinPrice = l.Price
			}
			if l.Price > report.MaxPrice {
				report.MaxPrice = l.Price
				report.MostExpensive = l
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	// Top 5 by match score
	ranked := make([]*models.Listing, len(listings))
	copy(ranked, listings)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MatchScore > ranked[j].MatchScore
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	report.TopMatches = ranked

	return report
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
