package models

import (
	"encoding/json"
	"time"
)

// Mode selects which upstream market a query targets.
type Mode string

const (
	ModeRent Mode = "rent"
	ModeBuy  Mode = "buy"
)

// Quality is the confidence tier assigned to a normalized record.
// "suspect" is a rejection tier: a suspect listing never reaches the
// accepted output set.
type Quality string

const (
	QualityHigh    Quality = "high"
	QualityMedium  Quality = "medium"
	QualityLow     Quality = "low"
	QualitySuspect Quality = "suspect"
)

// Features are the boolean amenities surfaced on a listing card.
// Walkup is derived as the negation of the elevator flag.
type Features struct {
	Pets     bool `json:"pets"`
	Laundry  bool `json:"laundry"`
	Elevator bool `json:"elevator"`
	Walkup   bool `json:"walkup"`
}

// Listing is the normalized, validated record produced by the pipeline.
// IDs are stable across refetches of the same underlying upstream record.
type Listing struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	Title        string    `json:"title"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	Description  string    `json:"description,omitempty"`
	Price        float64   `json:"price"`
	Beds         float64   `json:"beds"`
	Baths        float64   `json:"baths"`
	Sqft         float64   `json:"sqft"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	CommuteMins  int       `json:"commuteMins"`
	Features     Features  `json:"features"`
	Images       []string  `json:"images"`
	MatchScore   int       `json:"matchScore"`
	Why          string    `json:"why,omitempty"`
	DataQuality  Quality   `json:"dataQuality"`
	Type         Mode      `json:"type"`
	ExternalURL  string    `json:"externalUrl"`
	AgentURL     string    `json:"agentUrl,omitempty"`
	OfficeURL    string    `json:"officeUrl,omitempty"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Rejection pairs a raw upstream record with the reason it was dropped.
// Reason is a comma-joined list of issue codes; rejections are always
// surfaced in pipeline stats, never discarded silently.
type Rejection struct {
	Record json.RawMessage `json:"record"`
	Reason string          `json:"reason"`
}

// PipelineStats summarizes one validation pass over a raw batch.
// DedupedCount is reported separately from Rejected so a caller can
// distinguish "data was bad" from "data was redundant".
type PipelineStats struct {
	Total         int `json:"total"`
	Accepted      int `json:"accepted"`
	Rejected      int `json:"rejected"`
	HighQuality   int `json:"highQuality"`
	MediumQuality int `json:"mediumQuality"`
	LowQuality    int `json:"lowQuality"`
	DedupedCount  int `json:"dedupedCount"`
}
