package storage

import "swipehouse/models"

// ListingWriter is the interface any snapshot backend must satisfy.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Close() error
}

// RejectionWriter persists rejected records for offline review.
type RejectionWriter interface {
	WriteRejections(rejections []models.Rejection) error
	Close() error
}
