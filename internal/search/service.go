package search

import (
	"context"
	"log"

	"qero/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexContact indexes a contact (fire-and-forget to Meilisearch).
func (s *Service) IndexContact(contact store.Contact) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromContact(contact)
	go func() {
		if err := s.meili.IndexContact(record); err != nil {
			log.Printf("search: index contact %s: %v", record.ID, err)
		}
	}()
}

// DeleteContact removes a contact from the search index (fire-and-forget).
func (s *Service) DeleteContact(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteContact(id); err != nil {
			log.Printf("search: delete contact %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG pushes every contact from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexContacts(records); err != nil {
		log.Printf("search: reindex contacts: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
