package surveillance

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/casereport/casereport/pkg/epistat"
)

// Dimension is a grouping axis for aggregation.
type Dimension string

const (
	DimensionDay        Dimension = "day"
	DimensionWeek       Dimension = "week"
	DimensionMonth      Dimension = "month"
	DimensionQuarter    Dimension = "quarter"
	DimensionYear       Dimension = "year"
	DimensionHospital   Dimension = "hospital"
	DimensionDisease    Dimension = "disease"
	DimensionAgeGroup   Dimension = "age_group"
	DimensionGender     Dimension = "gender"
	DimensionOccupation Dimension = "occupation"
)

// IsTime reports whether d buckets by illness date.
func (d Dimension) IsTime() bool {
	switch d {
	case DimensionDay, DimensionWeek, DimensionMonth, DimensionQuarter, DimensionYear:
		return true
	}
	return false
}

func (d Dimension) valid() bool {
	switch d {
	case DimensionHospital, DimensionDisease, DimensionAgeGroup, DimensionGender, DimensionOccupation:
		return true
	}
	return d.IsTime()
}

// ParseTimeDimension validates a trend period name.
func ParseTimeDimension(s string) (Dimension, error) {
	d := Dimension(s)
	if !d.IsTime() {
		return "", fmt.Errorf("period %q: %w", s, ErrInvalidDimension)
	}
	return d, nil
}

// AggregatedCount is one flat output row of the aggregator.
type AggregatedCount struct {
	GroupKey     string     `json:"group_key"`
	GroupValue   string     `json:"group_value"`
	Count        int64      `json:"count"`
	HospitalCode string     `json:"hospital_code,omitempty"`
	DiseaseID    *uuid.UUID `json:"disease_id,omitempty"`
}

// PeriodStart returns the first instant of the d-period containing t. Weeks
// start on Sunday.
func PeriodStart(t time.Time, d Dimension) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch d {
	case DimensionWeek:
		return day.AddDate(0, 0, -int(day.Weekday()))
	case DimensionMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case DimensionQuarter:
		m := (int(t.Month())-1)/3*3 + 1
		return time.Date(t.Year(), time.Month(m), 1, 0, 0, 0, 0, t.Location())
	case DimensionYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	default:
		return day
	}
}

// PeriodKey formats the d-period containing t: YYYY-MM-DD for day and week
// (week start date), YYYY-MM, Q{n}-YYYY and YYYY.
func PeriodKey(t time.Time, d Dimension) string {
	start := PeriodStart(t, d)
	switch d {
	case DimensionMonth:
		return start.Format("2006-01")
	case DimensionQuarter:
		return fmt.Sprintf("Q%d-%04d", (int(start.Month())-1)/3+1, start.Year())
	case DimensionYear:
		return start.Format("2006")
	default:
		return start.Format(dateLayout)
	}
}

type group struct {
	value    string
	start    time.Time
	rank     int
	count    int64
	deaths   int64
	male     int64
	female   int64
	hospital string
	disease  *uuid.UUID
}

func groupValue(v PatientVisit, dim Dimension, bands *epistat.BandTable) string {
	switch {
	case dim.IsTime():
		return PeriodKey(v.IllnessDate, dim)
	case dim == DimensionHospital:
		return v.HospitalCode
	case dim == DimensionDisease:
		return v.DiseaseID.String()
	case dim == DimensionAgeGroup:
		return bands.Classify(v.AgeAtIllness)
	case dim == DimensionGender:
		return v.Gender.bucket()
	default:
		return v.occupationKey()
	}
}

// collect groups rows into ordered buckets. Time buckets are ordered
// chronologically, age bands in table order, everything else by value.
func collect(rows []PatientVisit, dim Dimension, bands *epistat.BandTable) ([]*group, error) {
	if !dim.valid() {
		return nil, fmt.Errorf("dimension %q: %w", dim, ErrInvalidDimension)
	}
	if dim == DimensionAgeGroup && bands == nil {
		return nil, fmt.Errorf("age_group needs a band table: %w", ErrInvalidDimension)
	}

	index := make(map[string]*group)
	for _, r := range rows {
		value := groupValue(r, dim, bands)
		b, ok := index[value]
		if !ok {
			b = &group{value: value}
			switch {
			case dim.IsTime():
				b.start = PeriodStart(r.IllnessDate, dim)
			case dim == DimensionAgeGroup:
				b.rank = bands.Index(value)
			case dim == DimensionHospital:
				b.hospital = r.HospitalCode
			case dim == DimensionDisease:
				id := r.DiseaseID
				b.disease = &id
			}
			index[value] = b
		}
		b.count++
		if r.IsDeath() {
			b.deaths++
		}
		switch r.Gender.bucket() {
		case genderKeyMale:
			b.male++
		case genderKeyFemale:
			b.female++
		}
	}

	out := make([]*group, 0, len(index))
	for _, b := range index {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		switch {
		case dim.IsTime():
			return out[i].start.Before(out[j].start)
		case dim == DimensionAgeGroup:
			return out[i].rank < out[j].rank
		default:
			return out[i].value < out[j].value
		}
	})
	return out, nil
}

// Aggregate counts rows per value of dim. bands is only consulted for the
// age_group dimension.
func Aggregate(rows []PatientVisit, dim Dimension, bands *epistat.BandTable) ([]AggregatedCount, error) {
	buckets, err := collect(rows, dim, bands)
	if err != nil {
		return nil, err
	}
	out := make([]AggregatedCount, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, AggregatedCount{
			GroupKey:     string(dim),
			GroupValue:   b.value,
			Count:        b.count,
			HospitalCode: b.hospital,
			DiseaseID:    b.disease,
		})
	}
	return out, nil
}

// AggregateByGender splits every group of dim into a "<dim>_male" and a
// "<dim>_female" row. Both rows are always emitted, even when zero.
func AggregateByGender(rows []PatientVisit, dim Dimension, bands *epistat.BandTable) ([]AggregatedCount, error) {
	if dim == DimensionGender {
		return nil, fmt.Errorf("cannot split gender by gender: %w", ErrInvalidDimension)
	}
	buckets, err := collect(rows, dim, bands)
	if err != nil {
		return nil, err
	}
	out := make([]AggregatedCount, 0, 2*len(buckets))
	for _, b := range buckets {
		out = append(out,
			AggregatedCount{
				GroupKey:     string(dim) + "_" + genderKeyMale,
				GroupValue:   b.value,
				Count:        b.male,
				HospitalCode: b.hospital,
				DiseaseID:    b.disease,
			},
			AggregatedCount{
				GroupKey:     string(dim) + "_" + genderKeyFemale,
				GroupValue:   b.value,
				Count:        b.female,
				HospitalCode: b.hospital,
				DiseaseID:    b.disease,
			},
		)
	}
	return out, nil
}
