package surveillance

import "github.com/casereport/casereport/pkg/epistat"

// Report names, used for cache keys, metrics labels and the CLI.
const (
	ReportAgeGroups      = "age_groups"
	ReportGenderRatio    = "gender_ratio"
	ReportIncidenceRates = "incidence_rates"
	ReportOccupations    = "occupations"
	ReportTrends         = "trends"
)

// NoPopulationNote explains zero rates when no denominator data matched.
const NoPopulationNote = "no population data for the selected scope; rates are reported as 0"

type AgeGroupsReport struct {
	Disease   Disease          `json:"disease"`
	Filters   ReportFilter     `json:"filters"`
	Summary   AgeGroupsSummary `json:"summary"`
	AgeGroups []AgeGroupRow    `json:"age_groups"`
}

type AgeGroupsSummary struct {
	TotalPatients     int64   `json:"total_patients"`
	TotalPopulation   int64   `json:"total_population"`
	IncidenceRate     float64 `json:"incidence_rate"`
	HasPopulationData bool    `json:"has_population_data"`
	Note              string  `json:"note,omitempty"`
}

type AgeGroupRow struct {
	AgeGroup          string  `json:"age_group"`
	Count             int64   `json:"count"`
	Male              int64   `json:"male"`
	Female            int64   `json:"female"`
	Percentage        float64 `json:"percentage"`
	IncidenceRate     float64 `json:"incidence_rate"`
	HasPopulationData bool    `json:"has_population_data"`
}

type GenderRatioReport struct {
	Disease     Disease            `json:"disease"`
	Filters     ReportFilter       `json:"filters"`
	Summary     GenderRatioSummary `json:"summary"`
	Counts      GenderBreakdown    `json:"counts"`
	Percentages GenderPercentages  `json:"percentages"`
	Ratio       GenderRatio        `json:"ratio"`
}

type GenderRatioSummary struct {
	TotalPatients int64 `json:"total_patients"`
}

type GenderBreakdown struct {
	Male        int64 `json:"male"`
	Female      int64 `json:"female"`
	Other       int64 `json:"other"`
	Unspecified int64 `json:"unspecified"`
}

type GenderPercentages struct {
	Male        float64 `json:"male"`
	Female      float64 `json:"female"`
	Other       float64 `json:"other"`
	Unspecified float64 `json:"unspecified"`
}

// GenderRatio expresses male:female as "<Male>:1" alongside the reduced
// pair. Male and Female are both 0 when either count is 0.
type GenderRatio struct {
	Male       float64       `json:"male"`
	Female     float64       `json:"female"`
	Text       string        `json:"text"`
	Simplified epistat.Ratio `json:"simplified"`
}

type IncidenceRatesReport struct {
	Disease   Disease          `json:"disease"`
	Filters   ReportFilter     `json:"filters"`
	Summary   IncidenceSummary `json:"summary"`
	Hospitals []HospitalRate   `json:"hospitals"`
}

type IncidenceSummary struct {
	TotalPatients     int64   `json:"total_patients"`
	TotalDeaths       int64   `json:"total_deaths"`
	Population        int64   `json:"population"`
	IncidenceRate     float64 `json:"incidence_rate"`
	MortalityRate     float64 `json:"mortality_rate"`
	CaseFatalityRate  float64 `json:"case_fatality_rate"`
	HasPopulationData bool    `json:"has_population_data"`
	Note              string  `json:"note,omitempty"`
}

type HospitalRate struct {
	HospitalCode      string  `json:"hospital_code"`
	HospitalName      string  `json:"hospital_name"`
	Patients          int64   `json:"patients"`
	Deaths            int64   `json:"deaths"`
	Population        int64   `json:"population"`
	IncidenceRate     float64 `json:"incidence_rate"`
	MortalityRate     float64 `json:"mortality_rate"`
	CaseFatalityRate  float64 `json:"case_fatality_rate"`
	HasPopulationData bool    `json:"has_population_data"`
}

type OccupationReport struct {
	Disease     Disease           `json:"disease"`
	Filters     ReportFilter      `json:"filters"`
	Summary     OccupationSummary `json:"summary"`
	Occupations []OccupationRow   `json:"occupations"`
}

type OccupationSummary struct {
	TotalPatients int64 `json:"total_patients"`
	Occupations   int   `json:"occupations"`
}

type OccupationRow struct {
	Occupation string  `json:"occupation"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type TrendReport struct {
	Disease Disease      `json:"disease"`
	Filters ReportFilter `json:"filters"`
	Period  Dimension    `json:"period"`
	Summary TrendSummary `json:"summary"`
	Series  []TrendPoint `json:"series"`
}

type TrendSummary struct {
	TotalPatients int64 `json:"total_patients"`
	TotalDeaths   int64 `json:"total_deaths"`
	Periods       int   `json:"periods"`
}

type TrendPoint struct {
	Period           string  `json:"period"`
	Start            string  `json:"start"`
	Cases            int64   `json:"cases"`
	Deaths           int64   `json:"deaths"`
	CaseFatalityRate float64 `json:"case_fatality_rate"`
}
