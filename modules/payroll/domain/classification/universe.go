package classification

import (
	"regexp"
	"strings"
)

// Universe is the comparison group of a department.
type Universe string

const (
	UniverseNone   Universe = ""
	UniversePolice Universe = "Police"
	UniverseFire   Universe = "Fire"
)

var (
	pdWord       = regexp.MustCompile(`\bpd\b`)
	publicSafety = regexp.MustCompile(`public safety`)
	oversight    = regexp.MustCompile(`\b(board|commission|commissioner|commissioners)\b`)
	fireWord     = regexp.MustCompile(`\b(fpd|fire)\b`)
)

// ClassifyUniverse assigns a department name to Police or Fire. Oversight
// bodies (police boards, fire commissions) stay out of the police universe.
func ClassifyUniverse(name string) Universe {
	n := strings.ToLower(name)

	if (pdWord.MatchString(n) || localPolice(n) || publicSafety.MatchString(n)) && !oversight.MatchString(n) {
		return UniversePolice
	}
	if fireWord.MatchString(n) {
		return UniverseFire
	}
	return UniverseNone
}

// localPolice reports an occurrence of "police" not preceded by "state ".
func localPolice(n string) bool {
	const word, state = "police", "state "
	for offset := 0; ; {
		i := strings.Index(n[offset:], word)
		if i < 0 {
			return false
		}
		at := offset + i
		if at < len(state) || n[at-len(state):at] != state {
			return true
		}
		offset = at + len(word)
	}
}

// UniverseOf classifies by the first alias that yields a universe.
// Aliases are expected preferred first.
func UniverseOf(aliases []string) Universe {
	for _, a := range aliases {
		if u := ClassifyUniverse(a); u != UniverseNone {
			return u
		}
	}
	return UniverseNone
}
