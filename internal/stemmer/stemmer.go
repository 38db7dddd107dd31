// Package stemmer implements CroStem, the deterministic suffix/prefix
// stripper mnemo uses to normalize text before it reaches the FTS index.
// It is ported from the CroStem Rust/PHP algorithm (via its Python
// reference implementation) into idiomatic Go: an ordered suffix table
// (longest first), a prefix table, an exception map, and a voicing
// (consonant-alternation) map, plus a lemma map for conservative mode.
package stemmer

import (
	"strings"
	"unicode"
)

// Mode selects how aggressively the stemmer strips suffixes.
type Mode string

const (
	// Aggressive strips more suffixes and accepts shorter remaining stems.
	Aggressive Mode = "aggressive"
	// Conservative keeps a minimum 3-character stem and applies the
	// lemma map as a final canonicalization step.
	Conservative Mode = "conservative"
)

// suffixesAggressive is ordered longest-first so the loop below always
// tries the longest matching suffix before a shorter one.
var suffixesAggressive = []string{
	"ovijega", "ovijemu", "ovijeg", "ovijem", "ovijim", "ovijih", "ovijoj",
	"ijega", "ijemu", "ijem", "ijih", "ijim", "ijog", "ijoj",
	"nijeg", "nijem", "nijih", "nijim", "nija", "nije", "niji", "niju",
	"asmo", "aste", "ahu", "ismo", "iste", "jesmo", "jeste", "jesu",
	"ajući", "ujući", "ivši", "avši", "jevši", "nuti", "iti", "ati", "eti", "uti",
	"ela", "ala", "alo", "ilo", "ili",
	"njak", "nost", "anje", "enje", "stvo", "ica", "ika", "ice", "ike",
	"jemu", "jega", "ama", "ima", "om", "em", "ev", "og", "eg", "im", "ih",
	"oj", "oh", "iš", "ov", "ši", "ga", "mu", "en", "ski", "jeh", "eš", "aš",
	"am", "osmo", "este", "oše",
	"a", "e", "i", "o", "u", "la", "lo", "li", "te", "mo", "je",
}

var suffixesConservative = []string{
	"ovijega", "ovijemu", "ovijeg", "ovijem", "ovijim", "ovijih", "ovijoj",
	"ijega", "ijemu", "ijem", "ijih", "ijim", "ijog", "ijoj",
	"nijeg", "nijem", "nijih", "nijim", "nija", "nije", "niji", "niju",
	"asmo", "aste", "ahu", "ismo", "iste", "jesmo", "jeste", "jesu",
	"ajući", "ujući", "ivši", "avši", "nuti", "iti", "ati", "eti", "uti",
	"ela", "ala", "alo", "ilo", "ili",
	"njak", "nost", "anje", "enje", "stvo", "ica", "ika", "ice", "ike",
	"jemu", "jega", "ama", "ima", "om", "em", "og", "im", "ih", "oj", "oh",
	"iš", "ov", "ši", "ga", "mu",
	"a", "e", "i", "o", "u", "la", "lo", "li", "te", "mo",
}

var prefixes = []string{"naj", "pre", "iz", "na", "po", "do", "uz"}

var exceptions = map[string]string{
	"ljudi": "ljud", "osoba": "osoba", "psa": "pas", "psi": "pas",
	"oca": "otac", "očevi": "otac", "oči": "oko", "uši": "uho",
	"djeca": "dijete", "vrapca": "vrabac", "vrapci": "vrabac",
}

var voiceRules = map[string]string{
	"učenic": "učenik", "majc": "majk", "ruc": "ruk", "ruz": "ruk", "noz": "nog",
	"knjiz": "knjig", "dječac": "dječak", "dus": "duh", "jezic": "jezik",
	"supruz": "suprug", "rekoš": "rek", "snjeg": "snijeg", "pjesnic": "pjesnik",
	"momc": "momak", "pekl": "pek", "gledal": "gled", "djetet": "djet",
	"pjes": "pjesm", "peć": "pek", "striž": "strig", "vuč": "vuk",
	"kaž": "kaz", "maš": "mah", "pij": "pi", "draž": "drag", "brž": "brz",
	"slađ": "slad", "vraz": "vrag", "siromas": "siromah", "skač": "skak",
	"svrs": "svrha", "vuc": "vuk", "oblac": "oblak", "viš": "vis",
	"bolj": "dobar", "jač": "jak", "već": "velik", "duž": "dug",
	"bjelj": "bijel", "gorč": "gork", "reć": "rek", "ora": "orl",
	"dijet": "djet", "tež": "teg", "sunc": "sunc", "vremen": "vremen",
	"djevojč": "djevojčic", "oras": "orah", "src": "src", "dra": "drag",
	"pečen": "pek", "rađen": "rad", "viđ": "vid", "momk": "momak",
	"vrapc": "vrab", "vidj": "vid", "ptič": "ptič", "snj": "snijeg",
	"hrvatsk": "hrvat", "mislima": "misao", "šalic": "šalic",
	"stručnj": "struč", "jest": "jed", "pit": "pi", "čut": "ču",
	"znat": "zna", "htj": "htje", "moć": "mog", "reč": "rek",
	"teč": "tek", "vrš": "vrh", "dobar": "dobr", "kratak": "kratk",
	"uzak": "uzk", "nizak": "nizk", "težak": "težk", "topao": "topl",
	"hladan": "hladn", "tjedn": "tjedan", "dvorc": "dvorac",
	"trenuc": "trenutak", "bitak": "bitka", "bajak": "bajka",
	"dasak": "daska", "djevojak": "djevojka", "momak": "momak",
	"top": "topl", "vidjev": "vid", "ljep": "lijep", "crv": "crven",
	"peč": "pek", "piš": "pis", "duš": "duh", "čovječ": "čovjek",
	"čovjec": "čovjek",
}

var lemmaRules = map[string]string{
	"majk": "majka", "ruk": "ruka", "nog": "noga", "knjig": "knjiga",
	"vrijem": "vrijeme", "djet": "dijete", "pjesm": "pjesma", "kuć": "kuća",
	"škol": "škola", "polj": "polje", "mor": "more", "sunc": "sunce",
	"dobr": "dobar", "sret": "sretan", "pamet": "pametan", "tužn": "tužan",
	"tuž": "tužan", "duž": "dug", "već": "velik", "manj": "malen",
	"bolj": "dobar", "lošij": "loš", "pis": "pisati", "vidj": "vidjeti",
	"vid": "vidjeti", "htje": "htjeti", "mog": "moći", "rek": "reći",
	"pek": "peći",
}

// Stem reduces a single word to its stem under mode. It is pure,
// idempotent within a mode (re-stemming a stem yields the same stem),
// and safe for concurrent use — it holds no mutable state.
func Stem(word string, mode Mode) string {
	word = cleanWord(word)
	if word == "" {
		return word
	}

	if stem, ok := exceptions[word]; ok {
		return stem
	}

	suffixes := suffixesAggressive
	if mode == Conservative {
		suffixes = suffixesConservative
	}

	current := word
	for {
		found := false
		for _, suffix := range suffixes {
			if !strings.HasSuffix(current, suffix) {
				continue
			}
			root := current[:len(current)-len(suffix)]
			if isSuffixStrippable(suffix, root, mode) {
				current = root
				found = true
				break
			}
		}
		if !found {
			break
		}
	}

	for _, prefix := range prefixes {
		if strings.HasPrefix(current, prefix) {
			root := current[len(prefix):]
			if runeLen(root) >= 3 {
				current = root
			}
			break
		}
	}

	if v, ok := voiceRules[current]; ok {
		current = v
	}

	if mode == Conservative {
		if l, ok := lemmaRules[current]; ok {
			current = l
		}
	}

	return current
}

// StemText stems every whitespace-separated token in text and rejoins
// the result with single spaces.
func StemText(text string, mode Mode) string {
	fields := strings.Fields(text)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = Stem(f, mode)
	}
	return strings.Join(out, " ")
}

func cleanWord(word string) string {
	word = strings.ToLower(strings.TrimSpace(word))
	var b strings.Builder
	for _, r := range word {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func runeLen(s string) int {
	return len([]rune(s))
}

// isSuffixStrippable mirrors the original's minimum-stem-length rule:
// conservative mode always requires a 3-rune root; aggressive mode has
// per-suffix minimums, with single-rune suffixes requiring a 3-rune root
// and most others requiring only 2.
func isSuffixStrippable(suffix, root string, mode Mode) bool {
	rootLen := runeLen(root)
	if mode == Conservative {
		return rootLen >= 3
	}
	switch suffix {
	case "em", "ov", "ev":
		return rootLen >= 3
	case "en", "ica", "ice", "ika", "ike":
		return rootLen >= 4
	}
	if runeLen(suffix) == 1 {
		return rootLen >= 3
	}
	return rootLen >= 2
}
