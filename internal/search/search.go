package search

import (
	"qero/api/internal/identity"
	"qero/api/internal/store"
)

// Result is a single contact hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	CompanyName string `json:"companyName"`
	Snippet     string `json:"snippet"`
	City        string `json:"city,omitempty"`
	TeamID      string `json:"teamId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	TeamID string // empty = all teams
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a contact search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ContactRecord is the data we index for a contact.
type ContactRecord struct {
	ID          string `json:"id"`
	TeamID      string `json:"teamId"`
	CompanyName string `json:"companyName"`
	ContactName string `json:"contactName"`
	Phone       string `json:"phone"`
	PhoneDigits string `json:"phoneDigits"`
	Email       string `json:"email"`
	City        string `json:"city"`
	Canton      string `json:"canton"`
}

// RecordFromContact builds the index record for c. Phone digits are indexed
// so that differently formatted numbers find the same contact.
func RecordFromContact(c store.Contact) ContactRecord {
	return ContactRecord{
		ID:          c.ID,
		TeamID:      c.TeamID,
		CompanyName: c.CompanyName,
		ContactName: c.ContactName,
		Phone:       c.Phone,
		PhoneDigits: identity.PhoneDigits(c.Phone),
		Email:       c.Email,
		City:        c.City,
		Canton:      c.Canton,
	}
}
