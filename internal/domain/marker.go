// Package domain contains the core data types for the Change Observer marker
// client. It has no external dependencies and is imported by every other
// internal package (repo, cache, service, form, view).
package domain

import (
	"slices"
)

// Marker is a geocoded point of interest monitored for visual change.
// MarkerID and DateCreated are assigned by the remote store; the history
// fields are produced by the detection pipeline and are read-only here.
type Marker struct {
	MarkerID         string      `json:"markerId"`
	Name             string      `json:"name"`
	Coordinate       Coordinate  `json:"coordinate"`
	SubscribedEmails []string    `json:"subscribedEmails"`
	DateCreated      Timestamp   `json:"dateCreated"`
	CurrentImage     *Image      `json:"currentImage,omitempty"`
	DetectedObjects  []Detection `json:"detectedObjects,omitempty"`
	HistoricalImages []Image     `json:"historicalImages,omitempty"`
}

// IsDraft reports whether m has not been persisted yet.
func (m Marker) IsDraft() bool { return m.MarkerID == "" }

// Draft returns the user-editable part of m.
func (m Marker) Draft() MarkerDraft {
	return MarkerDraft{
		Name:             m.Name,
		Coordinate:       m.Coordinate,
		SubscribedEmails: slices.Clone(m.SubscribedEmails),
	}
}

// Image is a stored satellite capture of a marker's location.
type Image struct {
	Description  string `json:"description"`
	ImageURL     string `json:"imageURL"`
	S3Key        string `json:"s3_key,omitempty"`
	S3BucketName string `json:"s3_bucket_name,omitempty"`
}

// Detection is one detection run: the labels found in an image at a point in time.
type Detection struct {
	DateDetected    Timestamp `json:"dateDetected"`
	DetectedObjects []string  `json:"detectedObjects"`
}

// MarkerDraft is a marker that exists only client-side, pending validation
// and creation. It is also the full editable state of an existing marker.
type MarkerDraft struct {
	Name             string     `json:"name"`
	Coordinate       Coordinate `json:"coordinate"`
	SubscribedEmails []string   `json:"subscribedEmails"`
}

// MarkerPatch is a partial update. Nil fields are left untouched by the store.
type MarkerPatch struct {
	Name             *string     `json:"name,omitempty"`
	Coordinate       *Coordinate `json:"coordinate,omitempty"`
	SubscribedEmails *[]string   `json:"subscribedEmails,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p MarkerPatch) IsEmpty() bool {
	return p.Name == nil && p.Coordinate == nil && p.SubscribedEmails == nil
}

// Apply returns m with the patch fields applied. Identity, creation date and
// history are never touched.
func (p MarkerPatch) Apply(m Marker) Marker {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Coordinate != nil {
		m.Coordinate = *p.Coordinate
	}
	if p.SubscribedEmails != nil {
		m.SubscribedEmails = slices.Clone(*p.SubscribedEmails)
	}
	return m
}

// Diff builds the minimal patch that turns current into draft.
func Diff(current Marker, draft MarkerDraft) MarkerPatch {
	var p MarkerPatch
	if draft.Name != current.Name {
		name := draft.Name
		p.Name = &name
	}
	if draft.Coordinate != current.Coordinate {
		c := draft.Coordinate
		p.Coordinate = &c
	}
	if !slices.Equal(draft.SubscribedEmails, current.SubscribedEmails) {
		emails := slices.Clone(draft.SubscribedEmails)
		if emails == nil {
			emails = []string{}
		}
		p.SubscribedEmails = &emails
	}
	return p
}
