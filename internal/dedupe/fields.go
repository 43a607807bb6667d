package dedupe

import (
	"strings"

	"qero/api/internal/store"
)

type contactField struct {
	column string
	get    func(*store.Contact) *string
}

// mergeableFields are copied from a duplicate into blank primary fields.
var mergeableFields = []contactField{
	{"contact_name", func(c *store.Contact) *string { return &c.ContactName }},
	{"email", func(c *store.Contact) *string { return &c.Email }},
	{"street", func(c *store.Contact) *string { return &c.Street }},
	{"city", func(c *store.Contact) *string { return &c.City }},
	{"canton", func(c *store.Contact) *string { return &c.Canton }},
	{"postal_code", func(c *store.Contact) *string { return &c.PostalCode }},
}

// phone is never merged but counts toward completeness.
var phoneField = contactField{"phone", func(c *store.Contact) *string { return &c.Phone }}

// FieldPatch maps contact columns to the values to write.
type FieldPatch map[string]string

// MergeContactFields returns the duplicate's values for every mergeable field
// that is blank on the primary. Phone is left alone; primary values are
// never overwritten.
func MergeContactFields(primary, duplicate store.Contact) FieldPatch {
	patch := FieldPatch{}
	for _, field := range mergeableFields {
		current := *field.get(&primary)
		incoming := *field.get(&duplicate)
		if isBlank(current) && !isBlank(incoming) {
			patch[field.column] = incoming
		}
	}
	return patch
}

// Apply returns c with the patch written into it.
func (p FieldPatch) Apply(c store.Contact) store.Contact {
	for _, field := range mergeableFields {
		if value, ok := p[field.column]; ok {
			*field.get(&c) = value
		}
	}
	return c
}

func filledFieldCount(c store.Contact) int {
	count := 0
	if !isBlank(*phoneField.get(&c)) {
		count++
	}
	for _, field := range mergeableFields {
		if !isBlank(*field.get(&c)) {
			count++
		}
	}
	return count
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
