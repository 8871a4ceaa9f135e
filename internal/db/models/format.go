// Package models - format.go defines the Format model: an immutable rendition
// specification (dimensions, quality, crop behaviour) that every signed link
// references exactly once.
package models

import "time"

// Crop mode values stored in the formats.crop_mode column. The renderer parses
// them into a closed variant type; anything else is a RenderFailure.
const (
	CropModeResize = "resize"
	CropModeCrop   = "crop"
	CropModeFit    = "fit"
)

// Format represents a derived-rendition specification
type Format struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Quality      int       `json:"quality"`
	Extension    string    `json:"extension"` // output file extension, e.g. "jpg"
	CropMode     string    `json:"crop_mode"`
	CropPosition string    `json:"crop_position"`
	CreatedAt    time.Time `json:"created_at"`
}
