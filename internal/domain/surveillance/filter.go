package surveillance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/casereport/casereport/pkg/epistat"
)

// AllSentinel is the external spelling of "no filter on this dimension".
const AllSentinel = "all"

const (
	dateLayout = "2006-01-02"
	minYear    = 1900
)

// Dim is a filter dimension that is either unrestricted (Any) or bound to a
// single value (Only). It replaces the "all" magic string internally.
type Dim[T comparable] struct {
	value T
	set   bool
}

// Any returns an unrestricted dimension.
func Any[T comparable]() Dim[T] {
	return Dim[T]{}
}

// Only returns a dimension bound to v.
func Only[T comparable](v T) Dim[T] {
	return Dim[T]{value: v, set: true}
}

// Get returns the bound value and whether one is set.
func (d Dim[T]) Get() (T, bool) {
	return d.value, d.set
}

func (d Dim[T]) IsAny() bool {
	return !d.set
}

// Ptr returns a pointer to the bound value, or nil for Any.
func (d Dim[T]) Ptr() *T {
	if !d.set {
		return nil
	}
	v := d.value
	return &v
}

func (d Dim[T]) String() string {
	if !d.set {
		return AllSentinel
	}
	return fmt.Sprint(d.value)
}

func (d Dim[T]) MarshalJSON() ([]byte, error) {
	if !d.set {
		return json.Marshal(AllSentinel)
	}
	return json.Marshal(d.value)
}

func (d *Dim[T]) UnmarshalJSON(data []byte) error {
	var s string
	if json.Unmarshal(data, &s) == nil && s == AllSentinel {
		*d = Any[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*d = Only(v)
	return nil
}

// RawFilter is the loosely-typed request as received from a caller. Every
// field is optional; DiseaseID is required by NormalizeFilter.
type RawFilter struct {
	DiseaseID    string `query:"disease_id" json:"disease_id" validate:"omitempty,uuid"`
	Year         string `query:"year" json:"year,omitempty" validate:"omitempty,max=4"`
	HospitalCode string `query:"hospital_code" json:"hospital_code,omitempty"`
	Gender       string `query:"gender" json:"gender,omitempty" validate:"omitempty,oneof=ALL MALE FEMALE"`
	AgeGroup     string `query:"age_group" json:"age_group,omitempty"`
	Occupation   string `query:"occupation" json:"occupation,omitempty"`
	DateFrom     string `query:"date_from" json:"date_from,omitempty"`
	DateTo       string `query:"date_to" json:"date_to,omitempty"`
}

// ReportFilter is the canonical, fully-bound filter shared by every report.
type ReportFilter struct {
	DiseaseID    uuid.UUID   `json:"disease_id"`
	Year         Dim[int]    `json:"year"`
	HospitalCode Dim[string] `json:"hospital_code"`
	Gender       Dim[Gender] `json:"gender"`
	AgeGroup     Dim[string] `json:"age_group"`
	Occupation   Dim[string] `json:"occupation"`
	DateFrom     *time.Time  `json:"date_from,omitempty"`
	DateTo       *time.Time  `json:"date_to,omitempty"`
}

var validate = validator.New()

func isAll(s string) bool {
	return s == "" || strings.EqualFold(s, AllSentinel)
}

// NormalizeFilter validates raw and binds defaults. now supplies the current
// year used when no year is given.
func NormalizeFilter(raw RawFilter, now time.Time) (ReportFilter, error) {
	raw.DiseaseID = strings.TrimSpace(raw.DiseaseID)
	raw.Year = strings.TrimSpace(raw.Year)
	raw.HospitalCode = strings.TrimSpace(raw.HospitalCode)
	raw.Gender = strings.ToUpper(strings.TrimSpace(raw.Gender))
	raw.AgeGroup = strings.TrimSpace(raw.AgeGroup)
	raw.Occupation = strings.TrimSpace(raw.Occupation)
	raw.DateFrom = strings.TrimSpace(raw.DateFrom)
	raw.DateTo = strings.TrimSpace(raw.DateTo)

	if raw.DiseaseID == "" {
		return ReportFilter{}, fmt.Errorf("disease: %w", ErrNotFound)
	}
	if err := validate.Struct(raw); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return ReportFilter{}, fmt.Errorf("%s failed %q check: %w", strings.ToLower(fe.Field()), fe.Tag(), ErrInvalidFilter)
		}
		return ReportFilter{}, fmt.Errorf("%v: %w", err, ErrInvalidFilter)
	}

	diseaseID, err := uuid.Parse(raw.DiseaseID)
	if err != nil {
		return ReportFilter{}, fmt.Errorf("disease_id %q: %w", raw.DiseaseID, ErrInvalidFilter)
	}

	f := ReportFilter{
		DiseaseID:    diseaseID,
		Year:         Any[int](),
		HospitalCode: Any[string](),
		Gender:       Any[Gender](),
		AgeGroup:     Any[string](),
		Occupation:   Any[string](),
	}

	switch {
	case raw.Year == "":
		f.Year = Only(now.Year())
	case strings.EqualFold(raw.Year, AllSentinel):
	default:
		year, err := strconv.Atoi(raw.Year)
		if err != nil {
			return ReportFilter{}, fmt.Errorf("year %q: %w", raw.Year, ErrInvalidFilter)
		}
		if year < minYear || year > now.Year()+1 {
			return ReportFilter{}, fmt.Errorf("year %d out of range: %w", year, ErrInvalidFilter)
		}
		f.Year = Only(year)
	}

	if !isAll(raw.HospitalCode) {
		f.HospitalCode = Only(raw.HospitalCode)
	}
	if !isAll(raw.Gender) {
		f.Gender = Only(Gender(raw.Gender))
	}
	if !isAll(raw.Occupation) {
		f.Occupation = Only(raw.Occupation)
	}
	// Unknown age groups are ignored rather than rejected.
	if !isAll(raw.AgeGroup) {
		if _, ok := epistat.FilterAgeBands.Lookup(raw.AgeGroup); ok {
			f.AgeGroup = Only(raw.AgeGroup)
		}
	}

	if raw.DateFrom != "" {
		d, err := time.Parse(dateLayout, raw.DateFrom)
		if err != nil {
			return ReportFilter{}, fmt.Errorf("date_from %q: %w", raw.DateFrom, ErrInvalidFilter)
		}
		f.DateFrom = &d
	}
	if raw.DateTo != "" {
		d, err := time.Parse(dateLayout, raw.DateTo)
		if err != nil {
			return ReportFilter{}, fmt.Errorf("date_to %q: %w", raw.DateTo, ErrInvalidFilter)
		}
		f.DateTo = &d
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return ReportFilter{}, fmt.Errorf("date_from after date_to: %w", ErrInvalidFilter)
	}

	return f, nil
}

// WithoutGender drops the gender predicate.
func (f ReportFilter) WithoutGender() ReportFilter {
	f.Gender = Any[Gender]()
	return f
}

// WithoutOccupation drops the occupation predicate.
func (f ReportFilter) WithoutOccupation() ReportFilter {
	f.Occupation = Any[string]()
	return f
}

// Key is a canonical string form of the filter, stable across requests.
func (f ReportFilter) Key() string {
	from, to := AllSentinel, AllSentinel
	if f.DateFrom != nil {
		from = f.DateFrom.Format(dateLayout)
	}
	if f.DateTo != nil {
		to = f.DateTo.Format(dateLayout)
	}
	return strings.Join([]string{
		f.DiseaseID.String(),
		f.Year.String(),
		f.HospitalCode.String(),
		f.Gender.String(),
		f.AgeGroup.String(),
		f.Occupation.String(),
		from,
		to,
	}, "|")
}

// VisitQuery is the predicate handed to Repository.ListPatientVisits. Nil
// fields are not filtered on. From is inclusive, Until exclusive.
type VisitQuery struct {
	DiseaseID    uuid.UUID
	HospitalCode *string
	Gender       *Gender
	MinAge       *int
	MaxAge       *int
	Occupation   *string
	From         *time.Time
	Until        *time.Time
}

// PopulationQuery is the predicate handed to Repository.ListPopulations.
type PopulationQuery struct {
	Year         *int
	HospitalCode *string
}

// VisitQuery builds the visit predicate for f.
func (f ReportFilter) VisitQuery() VisitQuery {
	q := VisitQuery{
		DiseaseID:    f.DiseaseID,
		HospitalCode: f.HospitalCode.Ptr(),
		Gender:       f.Gender.Ptr(),
		Occupation:   f.Occupation.Ptr(),
	}

	if name, ok := f.AgeGroup.Get(); ok {
		if band, ok := epistat.FilterAgeBands.Lookup(name); ok {
			lo := band.Min
			q.MinAge = &lo
			if band.Max != epistat.Unbounded {
				hi := band.Max
				q.MaxAge = &hi
			}
		}
	}

	if year, ok := f.Year.Get(); ok {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		until := from.AddDate(1, 0, 0)
		q.From, q.Until = &from, &until
	}
	if f.DateFrom != nil && (q.From == nil || f.DateFrom.After(*q.From)) {
		from := *f.DateFrom
		q.From = &from
	}
	if f.DateTo != nil {
		until := f.DateTo.AddDate(0, 0, 1)
		if q.Until == nil || until.Before(*q.Until) {
			q.Until = &until
		}
	}
	return q
}

// PopulationQuery builds the denominator predicate for f. Only year and
// hospital restrict population rows.
func (f ReportFilter) PopulationQuery() PopulationQuery {
	return PopulationQuery{
		Year:         f.Year.Ptr(),
		HospitalCode: f.HospitalCode.Ptr(),
	}
}

// Matches applies q to a single visit in memory, with the same semantics as
// the SQL implementation.
func (q VisitQuery) Matches(v PatientVisit) bool {
	if v.DiseaseID != q.DiseaseID {
		return false
	}
	if q.HospitalCode != nil && v.HospitalCode != *q.HospitalCode {
		return false
	}
	if q.Gender != nil && !strings.EqualFold(string(v.Gender), string(*q.Gender)) {
		return false
	}
	if q.MinAge != nil && v.AgeAtIllness < *q.MinAge {
		return false
	}
	if q.MaxAge != nil && v.AgeAtIllness > *q.MaxAge {
		return false
	}
	if q.Occupation != nil && v.occupationKey() != *q.Occupation {
		return false
	}
	if q.From != nil && v.IllnessDate.Before(*q.From) {
		return false
	}
	if q.Until != nil && !v.IllnessDate.Before(*q.Until) {
		return false
	}
	return true
}

// Matches applies q to a single population record in memory.
func (q PopulationQuery) Matches(r PopulationRecord) bool {
	if q.Year != nil && r.Year != *q.Year {
		return false
	}
	if q.HospitalCode != nil && r.HospitalCode != *q.HospitalCode {
		return false
	}
	return true
}
