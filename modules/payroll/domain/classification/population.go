package classification

import (
	"strings"
)

// PopulationRecord is one row of reference census data.
type PopulationRecord struct {
	Name           string
	Classification string
	GeoID          string
	Population     int64
	DataYear       int
}

// PopulationClasses lists the census classifications comparable to entityType.
// Nil means the taxonomy is not population-enriched.
func PopulationClasses(entityType string) []string {
	switch entityType {
	case Municipal:
		return []string{"city", "village", "town", "CDP"}
	case County:
		return []string{"county"}
	case Township:
		return []string{"township"}
	default:
		return nil
	}
}

func normalizePlace(name string, township bool) string {
	words := strings.Fields(strings.ToLower(name))
	if township {
		kept := words[:0]
		for _, w := range words {
			if w != "township" {
				kept = append(kept, w)
			}
		}
		words = kept
	}
	return strings.Join(words, " ")
}

// MatchPopulation picks the reference record for a unit. Among records whose
// name equals any alias the largest population wins, ties go to the smaller geoid.
func MatchPopulation(entityType string, aliases []string, records []PopulationRecord) (PopulationRecord, bool) {
	classes := PopulationClasses(entityType)
	if len(classes) == 0 {
		return PopulationRecord{}, false
	}
	township := entityType == Township

	names := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		if n := normalizePlace(a, township); n != "" {
			names[n] = struct{}{}
		}
	}

	var best PopulationRecord
	found := false
	for _, r := range records {
		if !classMatches(classes, r.Classification) {
			continue
		}
		if _, ok := names[normalizePlace(r.Name, township)]; !ok {
			continue
		}
		if !found || r.Population > best.Population || (r.Population == best.Population && r.GeoID < best.GeoID) {
			best = r
			found = true
		}
	}
	return best, found
}

func classMatches(classes []string, c string) bool {
	for _, want := range classes {
		if strings.EqualFold(want, c) {
			return true
		}
	}
	return false
}
