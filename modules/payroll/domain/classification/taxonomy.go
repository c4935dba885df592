package classification

const (
	SchoolDistrict  = "School District"
	HigherEducation = "Higher Education"

	Municipal = "Municipal"
	County    = "County"
	Township  = "Township"
)

// Taxonomy identifies a row of payroll_employertaxonomy.
type Taxonomy struct {
	EntityType   string
	Chicago      bool
	CookOrCollar bool
}

// Rule names the cascade step that produced a taxonomy.
type Rule string

const (
	RuleNone   Rule = "none"
	RuleDirect Rule = "direct"
	RuleISBE   Rule = "isbe"
	RuleIBHE   Rule = "ibhe"
)

// UnitFacts is what the cascade knows about one unit.
type UnitFacts struct {
	// Aliases, preferred first.
	Aliases        []string
	ReportedByISBE bool
	ReportedByIBHE bool
}

// Lookup finds the reference taxonomy for one alias.
type Lookup func(alias string) (Taxonomy, bool)

// ResolveTaxonomy applies the cascade; the first matching rule wins.
// A unit matching no rule gets RuleNone and a zero Taxonomy.
func ResolveTaxonomy(f UnitFacts, lookup Lookup) (Taxonomy, Rule) {
	if lookup != nil {
		for _, a := range f.Aliases {
			if t, ok := lookup(a); ok {
				return t, RuleDirect
			}
		}
	}
	if f.ReportedByISBE {
		return Taxonomy{EntityType: SchoolDistrict}, RuleISBE
	}
	if f.ReportedByIBHE {
		return Taxonomy{EntityType: HigherEducation}, RuleIBHE
	}
	return Taxonomy{}, RuleNone
}
