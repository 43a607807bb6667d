package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qero/api/internal/store"
)

func TestMergeContactFieldsFillsOnlyBlankFields(t *testing.T) {
	primary := store.Contact{ID: "p", CompanyName: "Müller GmbH", City: "Bern", Street: "  "}
	duplicate := store.Contact{
		ID:          "d",
		CompanyName: "MÜLLER GMBH",
		ContactName: "Anna Müller",
		Phone:       "+41791234567",
		City:        "Zürich",
		Street:      "Bahnhofstrasse 1",
		PostalCode:  "8001",
	}

	patch := MergeContactFields(primary, duplicate)

	assert.Equal(t, FieldPatch{
		"contact_name": "Anna Müller",
		"street":       "Bahnhofstrasse 1",
		"postal_code":  "8001",
	}, patch)
}

func TestMergeContactFieldsNeverTouchesPhone(t *testing.T) {
	primary := store.Contact{ID: "p"}
	duplicate := store.Contact{ID: "d", Phone: "+41791234567"}

	assert.Empty(t, MergeContactFields(primary, duplicate))
}

func TestFieldPatchApply(t *testing.T) {
	primary := store.Contact{ID: "p", City: "Bern"}
	patch := FieldPatch{"email": "info@example.ch", "canton": "BE"}

	merged := patch.Apply(primary)

	assert.Equal(t, "info@example.ch", merged.Email)
	assert.Equal(t, "BE", merged.Canton)
	assert.Equal(t, "Bern", merged.City)
	assert.Empty(t, primary.Email, "input is not modified")
}

func TestFilledFieldCount(t *testing.T) {
	assert.Equal(t, 0, filledFieldCount(store.Contact{CompanyName: "X"}))
	assert.Equal(t, 3, filledFieldCount(store.Contact{Phone: "1", Email: "a@b.ch", Canton: "ZH", City: " "}))
}
