package epistat

// Unbounded marks the open upper end of the last band in a table.
const Unbounded = -1

// AgeBand is a named inclusive age interval [Min, Max]. Max is Unbounded for
// the last band of a table.
type AgeBand struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Contains reports whether age falls inside the band.
func (b AgeBand) Contains(age int) bool {
	return age >= b.Min && (b.Max == Unbounded || age <= b.Max)
}

// BandTable is an ordered, contiguous set of age bands covering every
// non-negative age. The only tables are FilterAgeBands and ClinicalAgeBands;
// the two schemes serve different reports and are never interchangeable.
type BandTable struct {
	name  string
	bands []AgeBand
}

// FilterAgeBands is the coarse 10-year scheme used to translate an age-group
// filter into an age range.
var FilterAgeBands = BandTable{
	name: "filter",
	bands: []AgeBand{
		{Name: "0-10", Min: 0, Max: 10},
		{Name: "11-20", Min: 11, Max: 20},
		{Name: "21-30", Min: 21, Max: 30},
		{Name: "31-40", Min: 31, Max: 40},
		{Name: "41-50", Min: 41, Max: 50},
		{Name: "51+", Min: 51, Max: Unbounded},
	},
}

// ClinicalAgeBands is the fine scheme used by the age-distribution report.
var ClinicalAgeBands = BandTable{
	name: "clinical",
	bands: []AgeBand{
		{Name: "<1", Min: 0, Max: 0},
		{Name: "1-4", Min: 1, Max: 4},
		{Name: "5-9", Min: 5, Max: 9},
		{Name: "10-14", Min: 10, Max: 14},
		{Name: "15-24", Min: 15, Max: 24},
		{Name: "25-34", Min: 25, Max: 34},
		{Name: "35-44", Min: 35, Max: 44},
		{Name: "45-54", Min: 45, Max: 54},
		{Name: "55-64", Min: 55, Max: 64},
		{Name: "65+", Min: 65, Max: Unbounded},
	},
}

// Name identifies the table ("filter" or "clinical").
func (t BandTable) Name() string {
	return t.name
}

// Bands returns a copy of the table's bands in ascending order.
func (t BandTable) Bands() []AgeBand {
	out := make([]AgeBand, len(t.bands))
	copy(out, t.bands)
	return out
}

// Classify returns the name of the band containing age. Negative ages clamp to
// the lowest band and ages past the last bounded band fall into the open-ended
// last band, so every int maps to exactly one band.
func (t BandTable) Classify(age int) string {
	if len(t.bands) == 0 {
		return ""
	}
	if age < t.bands[0].Min {
		return t.bands[0].Name
	}
	for _, b := range t.bands {
		if b.Contains(age) {
			return b.Name
		}
	}
	return t.bands[len(t.bands)-1].Name
}

// Index returns the position of the named band, or -1.
func (t BandTable) Index(name string) int {
	for i, b := range t.bands {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns the band with the given name.
func (t BandTable) Lookup(name string) (AgeBand, bool) {
	if i := t.Index(name); i >= 0 {
		return t.bands[i], true
	}
	return AgeBand{}, false
}
