package delivery

import (
	"math/rand"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestCleanup(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"blank", "   \t\n ", ""},
		{"short word", "ok", "Ok"},
		{"filler and duplicate", "um hello hello world", "Hello world"},
		{"long sentence gets period", "um so this is a longer sentence", "So this is a longer sentence."},
		{"existing terminal punctuation", "is this working for everyone?", "Is this working for everyone?"},
		{"exclamation kept", "that is absolutely wonderful!", "That is absolutely wonderful!"},
		{"exactly twenty has no period", "abcde fghij klmno pq", "Abcde fghij klmno pq"},
		{"twenty one gets period", "abcde fghij klmno pqr", "Abcde fghij klmno pqr."},
		{"fillers case insensitive", "UH Hmm erm okay", "Okay"},
		{"filler must be whole word", "umbrella under the hmmm", "Umbrella under the hmmm."},
		{"only fillers", "uh um erm", ""},
		{"duplicate keeps first spelling", "The the cat", "The cat"},
		{"run of duplicates collapses", "go go go go now", "Go now"},
		{"duplicate separated by punctuation kept", "no, no", "No, no"},
		{"whitespace runs collapse", "  hello \t\n  there  ", "Hello there"},
		{"filler between duplicates", "hello uh hello", "Hello"},
		{"unicode first letter", "élan vital", "Élan vital"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Cleanup(tc.in))
		})
	}
}

func TestCleanupIdempotentOnVocabulary(t *testing.T) {
	t.Parallel()

	vocab := []string{"um", "uh", "Um", "hello", "Hello", "HELLO", "world", "the", "The", ",", ".", "?", "!", " ", "  ", "\t", "\n", "erm", "hmm", "ahh", "a", "again", "x_y", "42"}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		var b strings.Builder
		n := rng.Intn(14)
		for j := 0; j < n; j++ {
			b.WriteString(vocab[rng.Intn(len(vocab))])
			if rng.Intn(3) > 0 {
				b.WriteString(" ")
			}
		}
		in := b.String()
		once := Cleanup(in)
		assert.Equal(t, once, Cleanup(once), "input %q", in)
	}
}

func TestCleanupIdempotentOnArbitraryStrings(t *testing.T) {
	t.Parallel()

	property := func(s string) bool {
		once := Cleanup(s)
		return Cleanup(once) == once
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 2000}); err != nil {
		t.Fatalf("cleanup is not idempotent: %v", err)
	}
}

func TestCollapseRepeatedWords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b", collapseRepeatedWords("a a a b"))
	assert.Equal(t, "x a", collapseRepeatedWords("x a A"))
	assert.Equal(t, "solo", collapseRepeatedWords("solo"))
	assert.Equal(t, "ab-ab", collapseRepeatedWords("ab ab ab-ab"))
}
