package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxContacts = "qero_contacts"

// Meili implements Searcher and the contact index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the contact index.
// The client starts unhealthy if the first health check fails and recovers
// through the background health loop.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxContacts,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxContacts, err)
	}

	index := m.client.Index(idxContacts)
	filterable := []interface{}{"teamId", "canton", "city"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxContacts, err)
	}
	searchable := []string{"companyName", "contactName", "phoneDigits", "email", "city"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxContacts, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}
	offset := int64(q.Offset)
	if offset < 0 {
		offset = 0
	}
	req := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                offset,
		AttributesToHighlight: []string{"companyName", "contactName"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.TeamID != "" {
		req.Filter = fmt.Sprintf("teamId = %q", q.TeamID)
	}

	resp, err := m.client.Index(idxContacts).Search(q.Text, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:          decodeString(hit, "id"),
		TeamID:      decodeString(hit, "teamId"),
		City:        decodeString(hit, "city"),
		CompanyName: firstNonBlank(decodeFormattedString(hit, "companyName"), decodeString(hit, "companyName")),
		Snippet:     firstNonBlank(decodeFormattedString(hit, "contactName"), decodeString(hit, "email")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexContact adds or updates a contact in the index.
func (m *Meili) IndexContact(record ContactRecord) error {
	_, err := m.client.Index(idxContacts).AddDocuments([]ContactRecord{record}, nil)
	return err
}

// IndexContacts bulk-indexes contacts.
func (m *Meili) IndexContacts(records []ContactRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxContacts).AddDocuments(records, nil)
	return err
}

// DeleteContact removes a contact from the index.
func (m *Meili) DeleteContact(id string) error {
	_, err := m.client.Index(idxContacts).DeleteDocument(id, nil)
	return err
}
