package store

import (
	"encoding/json"
	"time"
)

// Contact is a company record. Empty strings stand for NULL columns.
type Contact struct {
	ID              string    `json:"id"`
	TeamID          string    `json:"team_id"`
	CompanyName     string    `json:"company_name"`
	ContactName     string    `json:"contact_name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	Street          string    `json:"street"`
	City            string    `json:"city"`
	Canton          string    `json:"canton"`
	PostalCode      string    `json:"postal_code"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	Source          string    `json:"source"`
	SourceAccountID string    `json:"source_account_id"`
	ExternalID      string    `json:"external_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Row is a dependent relation row keyed by column name.
type Row map[string]any

// ID returns the row's primary key as a string.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for key, value := range r {
		out[key] = value
	}
	return out
}

// ArchivedContact is the snapshot taken right before a duplicate is deleted.
// Relations maps a relation table to the rows that referenced the contact.
type ArchivedContact struct {
	ID                  string
	OriginalContactID   string
	TeamID              string
	DeletedBy           string
	Reason              string
	RunID               string
	MergedIntoContactID string
	Contact             Contact
	Relations           map[string][]Row
	CreatedAt           time.Time
}

// ArchiveSummary is the list view of an archived contact.
type ArchiveSummary struct {
	ID                  string         `json:"id"`
	OriginalContactID   string         `json:"originalContactId"`
	CompanyName         string         `json:"companyName"`
	TeamID              string         `json:"teamId,omitempty"`
	DeletedBy           string         `json:"deletedBy"`
	Reason              string         `json:"reason"`
	RunID               string         `json:"runId,omitempty"`
	MergedIntoContactID string         `json:"mergedIntoContactId,omitempty"`
	RelationCounts      map[string]int `json:"relationCounts"`
	CreatedAt           time.Time      `json:"createdAt"`
}

// CleanupRun is the immutable audit row written once per apply.
type CleanupRun struct {
	ID         string
	Type       string
	TeamID     string
	ExecutedBy string
	Summary    json.RawMessage
	Status     string
	CreatedAt  time.Time
}
