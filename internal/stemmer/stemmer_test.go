package stemmer

import "testing"

func TestStemIdempotent(t *testing.T) {
	words := []string{"kuća", "kući", "kućom", "kućama", "knjiga", "knjigama", "čovjek", "ljudi"}
	for _, w := range words {
		first := Stem(w, Aggressive)
		second := Stem(first, Aggressive)
		if first != second {
			t.Errorf("Stem(%q) = %q, not idempotent: Stem(%q) = %q", w, first, first, second)
		}
	}
}

func TestStemException(t *testing.T) {
	if got := Stem("ljudi", Aggressive); got != "ljud" {
		t.Errorf("Stem(ljudi) = %q, want ljud", got)
	}
}

func TestStemEmpty(t *testing.T) {
	if got := Stem("   ", Aggressive); got != "" {
		t.Errorf("Stem(whitespace) = %q, want empty", got)
	}
	if got := Stem("123", Aggressive); got != "" {
		t.Errorf("Stem(digits) = %q, want empty (non-letters stripped)", got)
	}
}

func TestStemTextJoinsWithSpaces(t *testing.T) {
	got := StemText("knjiga je na stolu", Aggressive)
	if got == "" {
		t.Fatal("StemText returned empty string for non-empty input")
	}
}

func TestConservativeKeepsLongerStems(t *testing.T) {
	word := "knjigama"
	aggr := Stem(word, Aggressive)
	cons := Stem(word, Conservative)
	if len(cons) < len(aggr) {
		t.Errorf("conservative stem %q shorter than aggressive %q for %q", cons, aggr, word)
	}
}
