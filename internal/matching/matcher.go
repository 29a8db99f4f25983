package matching

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Candidate is one named entry the matcher scores against user text.
type Candidate struct {
	ID   string
	Name string
}

// ScoredCandidate pairs a candidate with its best composite score.
type ScoredCandidate struct {
	Candidate
	Score float64
}

// Result is the outcome of one FindBest call. Match is nil when no candidates
// were supplied.
type Result struct {
	Match   *ScoredCandidate
	Score   float64
	Variant string
	Top     []ScoredCandidate

	// Confident means the top score cleared the threshold and the runner-up
	// is far enough behind. Ambiguous means the score sits in the gray band
	// or the runner-up is too close. Callers must check both flags rather
	// than inferring one from the other.
	Confident bool
	Ambiguous bool
}

// Options tune the confidence and ambiguity bands.
type Options struct {
	ConfidenceThreshold float64
	MinGap              float64
	GrayLow             float64
}

// DefaultOptions returns the standard matcher tuning.
func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: 0.8,
		MinGap:              0.08,
		GrayLow:             0.65,
	}
}

const topCandidates = 5

// honorifics are dropped during normalization so "Dra Geraldine" and
// "Geraldine" compare equal.
var honorifics = map[string]struct{}{
	"dr": {}, "dra": {}, "doutor": {}, "doutora": {},
	"sr": {}, "sra": {}, "srta": {}, "dom": {}, "dona": {},
	"mr": {}, "mrs": {}, "ms": {}, "miss": {}, "prof": {}, "profa": {},
}

// FindBest resolves free user text against a candidate list and reports the
// best match with confidence flags. Candidates are scored against every query
// variant and keep their maximum score.
func FindBest(userText string, candidates []Candidate, opts Options) Result {
	if opts.ConfidenceThreshold == 0 {
		opts = DefaultOptions()
	}

	query := Normalize(userText)
	variants := queryVariants(query)

	scored := make([]ScoredCandidate, 0, len(candidates))
	bestVariantFor := make(map[string]string, len(candidates))

	for _, c := range candidates {
		name := Normalize(c.Name)
		targets := append([]string{name}, strings.Fields(name)...)

		best := 0.0
		bestVariant := query
		for _, v := range variants {
			for _, target := range targets {
				if s := compositeSimilarity(v, target); s > best {
					best = s
					bestVariant = v
				}
			}
		}
		scored = append(scored, ScoredCandidate{Candidate: c, Score: best})
		bestVariantFor[c.ID+"\x00"+c.Name] = bestVariant
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	res := Result{}
	if len(scored) == 0 {
		return res
	}

	top := scored
	if len(top) > topCandidates {
		top = top[:topCandidates]
	}
	res.Top = top
	res.Match = &top[0]
	res.Score = top[0].Score
	res.Variant = bestVariantFor[top[0].ID+"\x00"+top[0].Name]

	gapOK := len(scored) == 1
	var gap float64
	if len(scored) > 1 {
		gap = scored[0].Score - scored[1].Score
		gapOK = gap >= opts.MinGap
	}

	res.Confident = res.Score >= opts.ConfidenceThreshold && gapOK
	res.Ambiguous = (res.Score >= opts.GrayLow && res.Score < opts.ConfidenceThreshold) ||
		(len(scored) > 1 && gap < opts.MinGap)

	return res
}

// Normalize folds case, strips diacritics and honorifics, removes
// non-alphanumeric runes and collapses whitespace.
func Normalize(s string) string {
	s = stripDiacritics(strings.ToLower(s))

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, skip := honorifics[tok]; skip {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryVariants expands the normalized query into the full string, its first
// token, its first two tokens, and 3/4/5-char prefixes of its last token. The
// prefix variants catch diminutives like "dine" for "Geraldine".
func queryVariants(query string) []string {
	seen := map[string]struct{}{}
	var variants []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}

	add(query)

	tokens := strings.Fields(query)
	if len(tokens) > 0 {
		add(tokens[0])
	}
	if len(tokens) > 1 {
		add(tokens[0] + " " + tokens[1])
	}
	if len(tokens) > 0 {
		// Slice by runes: normalization keeps multibyte letters like "ø".
		last := []rune(tokens[len(tokens)-1])
		for _, n := range []int{3, 4, 5} {
			if len(last) > n {
				add(string(last[:n]))
			}
		}
	}
	return variants
}

// compositeSimilarity blends four [0,1] signals:
// 0.5*sequence ratio + 0.25*prefix + 0.20*bigram Jaccard + 0.05*substring.
func compositeSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return 0.5*sequenceRatio(a, b) +
		0.25*prefixScore(a, b) +
		0.20*bigramJaccard(a, b) +
		0.05*substringBonus(a, b)
}

// sequenceRatio is the classic matching-blocks ratio: twice the number of
// matching characters over the combined length.
func sequenceRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matches := matchingChars(a, b)
	return 2 * float64(matches) / float64(len(a)+len(b))
}

// matchingChars recursively counts characters in common, splitting around the
// longest common substring the way difflib-style matchers do.
func matchingChars(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingChars(a[:ai], b[:bi])
	total += matchingChars(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					ai = i - size
					bi = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return ai, bi, size
}

func prefixScore(a, b string) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	common := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			break
		}
		common++
	}
	return float64(common) / float64(n)
}

func bigramJaccard(a, b string) float64 {
	ga := bigrams(a)
	gb := bigrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	inter := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			inter++
		}
	}
	union := len(ga) + len(gb) - inter
	return float64(inter) / float64(union)
}

func bigrams(s string) map[string]struct{} {
	grams := map[string]struct{}{}
	if len(s) < 2 {
		if s != "" {
			grams[s] = struct{}{}
		}
		return grams
	}
	for i := 0; i+2 <= len(s); i++ {
		grams[s[i:i+2]] = struct{}{}
	}
	return grams
}

func substringBonus(a, b string) float64 {
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return 1
	}
	return 0
}
