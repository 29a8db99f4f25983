package matching

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStripsHonorificsAndDiacritics(t *testing.T) {
	assert.Equal(t, "geraldine", Normalize("Dra. Geraldine"))
	assert.Equal(t, "joao paulo", Normalize("  Dr   João   Paulo! "))
	assert.Equal(t, "ana", Normalize("Sra Ana"))
}

func TestFindBestConfidentWithoutCloseRunnerUp(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Name: "Geraldine Silva"},
		{ID: "2", Name: "Marcos Paulo"},
		{ID: "3", Name: "Beatriz Rocha"},
	}

	res := FindBest("Dra Geraldine", candidates, DefaultOptions())

	if assert.NotNil(t, res.Match) {
		assert.Equal(t, "1", res.Match.ID)
	}
	assert.True(t, res.Confident, "expected confident match, score %v", res.Score)
	assert.False(t, res.Ambiguous)
}

func TestFindBestDiminutivePrefixVariant(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Name: "Geraldine Silva"},
		{ID: "2", Name: "Marcos Paulo"},
	}

	res := FindBest("dine", candidates, DefaultOptions())

	if assert.NotNil(t, res.Match) {
		assert.Equal(t, "1", res.Match.ID, "diminutive should land on Geraldine")
	}
}

func TestFindBestAmbiguousWhenRunnerUpClose(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Name: "Geraldine Silva"},
		{ID: "2", Name: "Geraldine Souza"},
	}

	res := FindBest("Geraldine", candidates, DefaultOptions())

	assert.False(t, res.Confident)
	assert.True(t, res.Ambiguous)
}

func TestFindBestSingleCandidateSkipsGapCheck(t *testing.T) {
	res := FindBest("Geraldine", []Candidate{{ID: "1", Name: "Geraldine Silva"}}, DefaultOptions())

	assert.True(t, res.Confident)
	assert.False(t, res.Ambiguous)
}

func TestFindBestNoCandidates(t *testing.T) {
	res := FindBest("anything", nil, DefaultOptions())

	assert.Nil(t, res.Match)
	assert.False(t, res.Confident)
	assert.False(t, res.Ambiguous)
}

func TestFindBestTopFiveTruncated(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Name: "Ana"}, {ID: "2", Name: "Bruna"}, {ID: "3", Name: "Carla"},
		{ID: "4", Name: "Daniela"}, {ID: "5", Name: "Elisa"}, {ID: "6", Name: "Fernanda"},
		{ID: "7", Name: "Gabriela"},
	}

	res := FindBest("Ana", candidates, DefaultOptions())

	assert.Len(t, res.Top, 5)
	assert.Equal(t, "1", res.Top[0].ID)
}

func TestFindBestLowScoreIsNeitherFlag(t *testing.T) {
	// A single far-off candidate: no gap rule applies and the score is below
	// the gray band, so neither flag is set.
	res := FindBest("xyzqw", []Candidate{{ID: "1", Name: "Geraldine Silva"}}, DefaultOptions())

	assert.False(t, res.Confident)
	assert.False(t, res.Ambiguous)
	assert.Less(t, res.Score, 0.65)
}

func TestCompositeSimilarityBounds(t *testing.T) {
	assert.InDelta(t, 1.0, compositeSimilarity("geraldine", "geraldine"), 1e-9)
	assert.Equal(t, 0.0, compositeSimilarity("", "geraldine"))

	s := compositeSimilarity("geral", "geraldine")
	assert.Greater(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestQueryVariantsKeepMultibyteRunesIntact(t *testing.T) {
	// "søren" has no NFD decomposition for "ø", so the normalized form is
	// still multibyte. Prefixes must never split a rune.
	variants := queryVariants("ana sørensen")
	for _, v := range variants {
		assert.True(t, utf8.ValidString(v), "variant %q is not valid UTF-8", v)
	}
	assert.Contains(t, variants, "sør")
	assert.Contains(t, variants, "søre")
}

func TestSequenceRatio(t *testing.T) {
	assert.InDelta(t, 1.0, sequenceRatio("abc", "abc"), 1e-9)
	assert.InDelta(t, 0.0, sequenceRatio("abc", "xyz"), 1e-9)
	// "dine" fully contained in "geraldine": 2*4/(4+9)
	assert.InDelta(t, 8.0/13.0, sequenceRatio("dine", "geraldine"), 1e-9)
}
