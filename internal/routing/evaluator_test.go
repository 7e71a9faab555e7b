package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConditions(t *testing.T) {
	conditions, err := ParseConditions(`{"currency":{"in":["USD","EUR"]},"amount":{"min":100}}`)
	require.NoError(t, err)
	assert.Len(t, conditions, 2)

	conditions, err = ParseConditions("")
	require.NoError(t, err)
	assert.Empty(t, conditions)

	_, err = ParseConditions("{broken")
	assert.Error(t, err)
}

func TestMatchesExactEquality(t *testing.T) {
	conditions := mustParse(t, `{"currency":"MYR"}`)

	assert.True(t, Matches(conditions, Context{"currency": "MYR"}))
	assert.False(t, Matches(conditions, Context{"currency": "USD"}))
}

func TestMatchesNumericEquality(t *testing.T) {
	conditions := mustParse(t, `{"amount":5000}`)

	assert.True(t, Matches(conditions, Context{"amount": int64(5000)}))
	assert.True(t, Matches(conditions, Context{"amount": 5000}))
	assert.True(t, Matches(conditions, Context{"amount": float64(5000)}))
	assert.False(t, Matches(conditions, Context{"amount": 4999}))
}

func TestMatchesRange(t *testing.T) {
	tests := []struct {
		name       string
		conditions string
		amount     interface{}
		want       bool
	}{
		{"inside both bounds", `{"amount":{"min":100,"max":10000}}`, 500, true},
		{"below min", `{"amount":{"min":100,"max":10000}}`, 99, false},
		{"above max", `{"amount":{"min":100,"max":10000}}`, 10001, false},
		{"min inclusive", `{"amount":{"min":100,"max":10000}}`, 100, true},
		{"max inclusive", `{"amount":{"min":100,"max":10000}}`, 10000, true},
		{"min only", `{"amount":{"min":100}}`, 1000000, true},
		{"max only", `{"amount":{"max":100}}`, 50, true},
		{"non numeric value", `{"amount":{"min":100}}`, "lots", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conditions := mustParse(t, tt.conditions)
			assert.Equal(t, tt.want, Matches(conditions, Context{"amount": tt.amount}))
		})
	}
}

func TestMatchesSetMembership(t *testing.T) {
	conditions := mustParse(t, `{"currency":{"in":["USD","EUR"]}}`)

	assert.True(t, Matches(conditions, Context{"currency": "USD"}))
	assert.True(t, Matches(conditions, Context{"currency": "EUR"}))
	assert.False(t, Matches(conditions, Context{"currency": "MYR"}))
}

func TestMatchesRegex(t *testing.T) {
	conditions := mustParse(t, `{"payment_method":{"regex":"^card_"}}`)

	assert.True(t, Matches(conditions, Context{"payment_method": "card_visa"}))
	assert.False(t, Matches(conditions, Context{"payment_method": "fpx"}))

	broken := mustParse(t, `{"payment_method":{"regex":"("}}`)
	assert.False(t, Matches(broken, Context{"payment_method": "card_visa"}))
}

func TestAbsentContextFieldIsNonBlocking(t *testing.T) {
	// A condition on a field the context lacks is skipped, not failed.
	conditions := mustParse(t, `{"country":{"in":["MY","SG"]},"currency":"MYR"}`)

	assert.True(t, Matches(conditions, Context{"currency": "MYR"}))
	assert.False(t, Matches(conditions, Context{"currency": "MYR", "country": "TH"}))
	assert.True(t, Matches(conditions, Context{"currency": "MYR", "country": "SG"}))
}

func TestEmptyConditionsMatchEverything(t *testing.T) {
	assert.True(t, Matches(map[string]interface{}{}, Context{"currency": "MYR"}))
	assert.True(t, Matches(map[string]interface{}{}, Context{}))
}

func TestUnknownOperatorNeverMatches(t *testing.T) {
	conditions := mustParse(t, `{"amount":{"between":[1,2]}}`)
	assert.False(t, Matches(conditions, Context{"amount": 1}))
}

func mustParse(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	conditions, err := ParseConditions(raw)
	require.NoError(t, err)
	return conditions
}
