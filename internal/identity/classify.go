package identity

import "strings"

// Reason names the identity signal that made two records the same company.
type Reason string

const (
	ReasonGraphID     Reason = "graph_id"
	ReasonPhone       Reason = "phone"
	ReasonEmailDomain Reason = "email_domain"
	ReasonName        Reason = "name"
)

// Candidate is the subset of a contact the classifier looks at.
type Candidate struct {
	CompanyName string `json:"companyName"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	ExternalID  string `json:"externalId"`
}

// Decision is the outcome of classifying one candidate.
type Decision struct {
	IsDuplicate bool    `json:"isDuplicate"`
	Reason      *Reason `json:"reason"`
}

// KeySets accumulates the identity keys already known within one import
// invocation. It is built from stored contacts and grows as candidates are
// accepted, so duplicates inside the same batch are caught as well.
type KeySets struct {
	Phones      map[string]struct{}
	Names       map[string]struct{}
	Domains     map[string]struct{}
	ExternalIDs map[string]struct{}
}

func NewKeySets(existing []Candidate) *KeySets {
	keys := &KeySets{
		Phones:      make(map[string]struct{}),
		Names:       make(map[string]struct{}),
		Domains:     make(map[string]struct{}),
		ExternalIDs: make(map[string]struct{}),
	}
	for _, candidate := range existing {
		keys.Add(candidate)
	}
	return keys
}

// Check reports whether candidate duplicates a known record. The first
// matching signal wins: external id, phone, company email domain, name.
// Check never mutates the sets.
func (k *KeySets) Check(candidate Candidate) Decision {
	if id := strings.TrimSpace(candidate.ExternalID); id != "" && contains(k.ExternalIDs, id) {
		return duplicate(ReasonGraphID)
	}
	if phone := PhoneDigits(candidate.Phone); phone != "" && contains(k.Phones, phone) {
		return duplicate(ReasonPhone)
	}
	if domain := MatchableDomain(candidate.Email); domain != "" && contains(k.Domains, domain) {
		return duplicate(ReasonEmailDomain)
	}
	if name := NormalizedName(candidate.CompanyName); name != "" && contains(k.Names, name) {
		return duplicate(ReasonName)
	}
	return Decision{}
}

// Add registers the keys of an accepted candidate.
func (k *KeySets) Add(candidate Candidate) {
	if id := strings.TrimSpace(candidate.ExternalID); id != "" {
		k.ExternalIDs[id] = struct{}{}
	}
	if phone := PhoneDigits(candidate.Phone); phone != "" {
		k.Phones[phone] = struct{}{}
	}
	if domain := MatchableDomain(candidate.Email); domain != "" {
		k.Domains[domain] = struct{}{}
	}
	if name := NormalizedName(candidate.CompanyName); name != "" {
		k.Names[name] = struct{}{}
	}
}

// Classify checks candidate and, when it is not a duplicate, adds its keys.
func (k *KeySets) Classify(candidate Candidate) Decision {
	decision := k.Check(candidate)
	if !decision.IsDuplicate {
		k.Add(candidate)
	}
	return decision
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

func duplicate(reason Reason) Decision {
	return Decision{IsDuplicate: true, Reason: &reason}
}
