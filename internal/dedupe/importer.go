package dedupe

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"qero/api/internal/identity"
	"qero/api/internal/store"
)

// ImportRecord is one contact offered for import.
type ImportRecord struct {
	CompanyName     string `json:"companyName"`
	ContactName     string `json:"contactName"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Street          string `json:"street"`
	City            string `json:"city"`
	Canton          string `json:"canton"`
	PostalCode      string `json:"postalCode"`
	Source          string `json:"source"`
	SourceAccountID string `json:"sourceAccountId"`
	ExternalID      string `json:"externalId"`
}

func (r ImportRecord) candidate() identity.Candidate {
	return identity.Candidate{
		CompanyName: r.CompanyName,
		Phone:       r.Phone,
		Email:       r.Email,
		ExternalID:  r.ExternalID,
	}
}

// ImportRow is the outcome for the record at Index.
type ImportRow struct {
	Index       int              `json:"index"`
	IsDuplicate bool             `json:"isDuplicate"`
	Reason      *identity.Reason `json:"reason"`
	ContactID   string           `json:"contactId,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type ImportResult struct {
	Imported   int         `json:"imported"`
	Duplicates int         `json:"duplicates"`
	Failed     int         `json:"failed"`
	Rows       []ImportRow `json:"rows"`
}

// ImportCheck classifies one candidate against keys without changing them.
func ImportCheck(candidate identity.Candidate, keys *identity.KeySets) identity.Decision {
	return keys.Check(candidate)
}

func candidateOf(c store.Contact) identity.Candidate {
	return identity.Candidate{
		CompanyName: c.CompanyName,
		Phone:       c.Phone,
		Email:       c.Email,
		ExternalID:  c.ExternalID,
	}
}

func (s *Service) keySets(ctx context.Context, scope Scope, op string) (*identity.KeySets, error) {
	contacts, err := s.store.ListContacts(ctx, scope.TeamID)
	if err != nil {
		return nil, newError(ErrPersistence, op, scope.TeamID, err)
	}
	existing := make([]identity.Candidate, 0, len(contacts))
	for _, c := range contacts {
		existing = append(existing, candidateOf(c))
	}
	return identity.NewKeySets(existing), nil
}

// CheckCandidates classifies a batch against the stored contacts of the scope
// and against earlier candidates of the same batch. Nothing is written.
func (s *Service) CheckCandidates(ctx context.Context, actor Actor, scope Scope, candidates []identity.Candidate) ([]identity.Decision, error) {
	const op = "check import"
	if err := s.begin(ctx, actor, scope, op); err != nil {
		return nil, err
	}
	keys, err := s.keySets(ctx, scope, op)
	if err != nil {
		return nil, err
	}
	decisions := make([]identity.Decision, 0, len(candidates))
	for _, candidate := range candidates {
		decisions = append(decisions, keys.Classify(candidate))
	}
	return decisions, nil
}

// Import inserts every record that is not a duplicate. Records are handled
// in order, so the first of two identical records wins.
func (s *Service) Import(ctx context.Context, actor Actor, scope Scope, records []ImportRecord) (ImportResult, error) {
	const op = "import contacts"
	if err := s.begin(ctx, actor, scope, op); err != nil {
		return ImportResult{}, err
	}
	keys, err := s.keySets(ctx, scope, op)
	if err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{Rows: make([]ImportRow, 0, len(records))}
	for i, record := range records {
		row := ImportRow{Index: i}
		if strings.TrimSpace(record.CompanyName) == "" {
			row.Error = validationError(op, "company name is required").Error()
			result.Failed++
			result.Rows = append(result.Rows, row)
			continue
		}

		decision := keys.Check(record.candidate())
		row.IsDuplicate = decision.IsDuplicate
		row.Reason = decision.Reason
		if decision.IsDuplicate {
			result.Duplicates++
			result.Rows = append(result.Rows, row)
			continue
		}

		created, err := s.store.InsertContact(ctx, store.Contact{
			TeamID:          scope.TeamID,
			CompanyName:     strings.TrimSpace(record.CompanyName),
			ContactName:     strings.TrimSpace(record.ContactName),
			Phone:           strings.TrimSpace(record.Phone),
			Email:           strings.TrimSpace(record.Email),
			Street:          strings.TrimSpace(record.Street),
			City:            strings.TrimSpace(record.City),
			Canton:          strings.TrimSpace(record.Canton),
			PostalCode:      strings.TrimSpace(record.PostalCode),
			Source:          record.Source,
			SourceAccountID: record.SourceAccountID,
			ExternalID:      strings.TrimSpace(record.ExternalID),
		})
		if err != nil {
			s.logger.Warn("dedupe: import insert failed", zap.Int("index", i), zap.Error(err))
			row.Error = newError(ErrPersistence, op, "", err).Error()
			result.Failed++
			result.Rows = append(result.Rows, row)
			continue
		}
		keys.Add(record.candidate())
		s.index.IndexContact(created)
		row.ContactID = created.ID
		result.Imported++
		result.Rows = append(result.Rows, row)
	}

	s.metrics.RecordImport(result)
	return result, nil
}
