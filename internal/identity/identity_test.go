package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneDigits(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "international", input: "+41 79 123 45 67", want: "41791234567"},
		{name: "punctuation", input: "(044) 555-12.34", want: "0445551234"},
		{name: "exactly six", input: "12-34-56", want: "123456"},
		{name: "too short", input: "12345", want: ""},
		{name: "empty", input: "", want: ""},
		{name: "trunk prefix kept", input: "079 123 45 67", want: "0791234567"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PhoneDigits(tc.input))
		})
	}
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "mueller.ch", EmailDomain("Info@Mueller.CH"))
	assert.Equal(t, "", EmailDomain("no-at-sign"))
	assert.Equal(t, "", EmailDomain(""))
}

func TestNormalizedName(t *testing.T) {
	assert.Equal(t, "müller gmbh", NormalizedName("  MÜLLER \t  GmbH "))
	assert.Equal(t, "", NormalizedName(" a "))
	assert.Equal(t, "ab", NormalizedName("AB"))
}

func TestMatchableDomainExcludesPublicProviders(t *testing.T) {
	for _, email := range []string{"a@gmail.com", "b@GMX.CH", "c@bluewin.ch", "d@proton.me", "e@hotmail.com"} {
		assert.Empty(t, MatchableDomain(email), email)
	}
	assert.Equal(t, "acme.ch", MatchableDomain("hr@acme.ch"))
}

func TestCheckGraphIDOverridesOtherSignals(t *testing.T) {
	keys := NewKeySets([]Candidate{{
		CompanyName: "Acme AG",
		Phone:       "+41 44 000 00 00",
		Email:       "info@acme.ch",
		ExternalID:  "graph-123",
	}})

	decision := keys.Check(Candidate{
		CompanyName: "Completely Different",
		Phone:       "+41 31 999 99 99",
		Email:       "x@other.ch",
		ExternalID:  "graph-123",
	})

	require.True(t, decision.IsDuplicate)
	require.NotNil(t, decision.Reason)
	assert.Equal(t, ReasonGraphID, *decision.Reason)
}

func TestCheckPriorityOrder(t *testing.T) {
	keys := NewKeySets([]Candidate{{CompanyName: "Acme AG", Phone: "0441234567", Email: "info@acme.ch"}})

	decision := keys.Check(Candidate{CompanyName: "Acme AG", Phone: "044 123 45 67", Email: "jobs@acme.ch"})
	require.True(t, decision.IsDuplicate)
	assert.Equal(t, ReasonPhone, *decision.Reason)

	decision = keys.Check(Candidate{CompanyName: "Acme AG", Email: "jobs@acme.ch"})
	assert.Equal(t, ReasonEmailDomain, *decision.Reason)

	decision = keys.Check(Candidate{CompanyName: "acme  ag"})
	assert.Equal(t, ReasonName, *decision.Reason)
}

func TestCheckIgnoresPublicDomain(t *testing.T) {
	keys := NewKeySets([]Candidate{{CompanyName: "Alpha", Email: "alpha@gmail.com"}})

	decision := keys.Check(Candidate{CompanyName: "Beta", Email: "beta@gmail.com"})
	assert.False(t, decision.IsDuplicate)
	assert.Nil(t, decision.Reason)
}

func TestCheckDoesNotMutate(t *testing.T) {
	keys := NewKeySets(nil)
	candidate := Candidate{CompanyName: "Acme AG"}

	keys.Check(candidate)
	assert.False(t, keys.Check(candidate).IsDuplicate)
}

func TestClassifyCatchesDuplicatesWithinBatch(t *testing.T) {
	keys := NewKeySets(nil)

	first := keys.Classify(Candidate{CompanyName: "Beta GmbH", Phone: "+41 79 555 44 33"})
	second := keys.Classify(Candidate{CompanyName: "Beta Holding", Phone: "+41795554433"})
	third := keys.Classify(Candidate{CompanyName: "Gamma SA"})

	assert.False(t, first.IsDuplicate)
	require.True(t, second.IsDuplicate)
	assert.Equal(t, ReasonPhone, *second.Reason)
	assert.False(t, third.IsDuplicate)
	assert.Contains(t, keys.Names, "gamma sa")
	assert.NotContains(t, keys.Names, "beta holding")
}
