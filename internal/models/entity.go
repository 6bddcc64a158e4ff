// Package models defines core data structures for entities, queries, and matrix responses.
package models

import "time"

// Entity is one row of the content matrix. ID is the row index.
type Entity struct {
	ID         int                    `json:"id" db:"id"`
	Source     string                 `json:"source,omitempty" db:"source"`
	Attributes map[string]interface{} `json:"attributes" db:"attributes"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// EntityInput is the input for creating or replacing an entity.
type EntityInput struct {
	ID         int                    `json:"id"`
	Source     string                 `json:"source,omitempty"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Validate checks the input against the matrix row capacity.
func (in *EntityInput) Validate(maxRows int) error {
	if in.ID < 0 || (maxRows > 0 && in.ID >= maxRows) {
		return invalidf("entity id %d out of range [0, %d)", in.ID, maxRows)
	}
	if len(in.Attributes) == 0 {
		return invalidf("entity %d has no attributes", in.ID)
	}
	return nil
}

// Entity converts the input into an entity.
func (in *EntityInput) Entity() *Entity {
	return &Entity{ID: in.ID, Source: in.Source, Attributes: in.Attributes}
}

// GeoPoint is a WGS84 location.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate checks the coordinate ranges.
func (p GeoPoint) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return invalidf("latitude %v out of range", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return invalidf("longitude %v out of range", p.Lon)
	}
	return nil
}
