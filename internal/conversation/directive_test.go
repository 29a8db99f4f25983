package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirectiveAskUserString(t *testing.T) {
	d, err := ParseDirective([]byte(`{"action": "ask_user", "rules": ["ask for the date"]}`))
	require.NoError(t, err)

	assert.True(t, d.IsAskUser())
	assert.Empty(t, d.Tools())
	assert.Equal(t, []string{"ask for the date"}, d.Rules)
}

func TestParseDirectiveAskUserSingletonListEquivalent(t *testing.T) {
	d, err := ParseDirective([]byte(`{"action": ["ask_user"]}`))
	require.NoError(t, err)

	assert.True(t, d.IsAskUser())
}

func TestParseDirectiveBareToolBecomesSequence(t *testing.T) {
	d, err := ParseDirective([]byte(`{"action": "find_professional"}`))
	require.NoError(t, err)

	assert.False(t, d.IsAskUser())
	assert.Equal(t, []string{"find_professional"}, d.Tools())
}

func TestParseDirectiveOrderedList(t *testing.T) {
	d, err := ParseDirective([]byte(`{"action": ["find_professional", "check_availability"], "missing_fields": ["time"]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"find_professional", "check_availability"}, d.Tools())
	assert.Equal(t, []string{"time"}, d.MissingFields)
}

func TestParseDirectiveRejectsMixedAskUser(t *testing.T) {
	_, err := ParseDirective([]byte(`{"action": ["find_professional", "ask_user"]}`))
	assert.Error(t, err)
}

func TestParseDirectiveRejectsGarbage(t *testing.T) {
	cases := []string{
		`not json`,
		`{"rules": ["x"]}`,
		`{"action": 42}`,
		`{"action": []}`,
		`{"action": ""}`,
	}
	for _, c := range cases {
		_, err := ParseDirective([]byte(c))
		assert.Error(t, err, "input %q should fail", c)
	}
}

func TestCacheInstructionApply(t *testing.T) {
	data := ExtractedData{"a": "1", "b": "2"}

	instr := &CacheInstruction{
		Update: map[string]string{"b": "20", "c": "3"},
		Clear:  []string{"a", "c"},
	}
	instr.Apply(data)

	assert.Equal(t, ExtractedData{"b": "20"}, data)
}

func TestCacheInstructionNilApplySafe(t *testing.T) {
	data := ExtractedData{"a": "1"}
	var instr *CacheInstruction
	instr.Apply(data)
	assert.Equal(t, ExtractedData{"a": "1"}, data)
}
