package surveillance

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gender as recorded on a patient visit. Anything other than the three known
// values, including empty, is reported as unspecified.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// Gender buckets used in aggregation output.
const (
	genderKeyMale        = "male"
	genderKeyFemale      = "female"
	genderKeyOther       = "other"
	genderKeyUnspecified = "unspecified"
)

// bucket maps a recorded gender to its reporting category.
func (g Gender) bucket() string {
	switch Gender(strings.ToUpper(string(g))) {
	case GenderMale:
		return genderKeyMale
	case GenderFemale:
		return genderKeyFemale
	case GenderOther:
		return genderKeyOther
	default:
		return genderKeyUnspecified
	}
}

// ConditionDied is the patient condition recorded for a fatal outcome.
const ConditionDied = "DIED"

// UnspecifiedOccupation labels visits with no recorded occupation.
const UnspecifiedOccupation = "unspecified"

type Disease struct {
	ID     uuid.UUID `json:"id"`
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

type Hospital struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// PatientVisit is the read-only projection of a visit row the reports consume.
// AgeAtIllness is computed upstream from birthday and illness date.
type PatientVisit struct {
	ID               uuid.UUID  `json:"id"`
	HospitalCode     string     `json:"hospital_code"`
	DiseaseID        uuid.UUID  `json:"disease_id"`
	Gender           Gender     `json:"gender,omitempty"`
	AgeAtIllness     int        `json:"age_at_illness"`
	IllnessDate      time.Time  `json:"illness_date"`
	PatientCondition string     `json:"patient_condition,omitempty"`
	DeathDate        *time.Time `json:"death_date,omitempty"`
	Occupation       string     `json:"occupation,omitempty"`
}

// IsDeath reports a fatal outcome. Either signal alone is enough since the two
// fields are not always entered consistently.
func (v PatientVisit) IsDeath() bool {
	return strings.EqualFold(v.PatientCondition, ConditionDied) || v.DeathDate != nil
}

// occupationKey returns the occupation label used for grouping.
func (v PatientVisit) occupationKey() string {
	occ := strings.TrimSpace(v.Occupation)
	if occ == "" {
		return UnspecifiedOccupation
	}
	return occ
}

type PopulationRecord struct {
	Year         int    `json:"year"`
	HospitalCode string `json:"hospital_code"`
	Count        int64  `json:"count"`
}

// sumPopulation totals every matching record. Hospitals may carry several
// overlapping entries, so the denominator is always a sum.
func sumPopulation(records []PopulationRecord) int64 {
	var total int64
	for _, r := range records {
		total += r.Count
	}
	return total
}

// populationByHospital sums population counts per hospital code.
func populationByHospital(records []PopulationRecord) map[string]int64 {
	out := make(map[string]int64)
	for _, r := range records {
		out[r.HospitalCode] += r.Count
	}
	return out
}

func countDeaths(rows []PatientVisit) int64 {
	var n int64
	for _, r := range rows {
		if r.IsDeath() {
			n++
		}
	}
	return n
}
