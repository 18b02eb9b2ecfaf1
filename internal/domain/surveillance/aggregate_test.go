package surveillance

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casereport/casereport/pkg/epistat"
)

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func visitsOn(dates ...string) []PatientVisit {
	rows := make([]PatientVisit, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, PatientVisit{ID: uuid.New(), IllnessDate: day(d)})
	}
	return rows
}

func TestPeriodKey(t *testing.T) {
	tests := []struct {
		date string
		dim  Dimension
		want string
	}{
		{"2024-03-09", DimensionDay, "2024-03-09"},
		{"2024-01-03", DimensionWeek, "2023-12-31"},
		{"2024-01-07", DimensionWeek, "2024-01-07"},
		{"2024-01-06", DimensionWeek, "2023-12-31"},
		{"2024-01-31", DimensionMonth, "2024-01"},
		{"2024-01-01", DimensionQuarter, "Q1-2024"},
		{"2024-03-31", DimensionQuarter, "Q1-2024"},
		{"2024-04-01", DimensionQuarter, "Q2-2024"},
		{"2024-12-31", DimensionQuarter, "Q4-2024"},
		{"2024-07-15", DimensionYear, "2024"},
	}
	for _, tt := range tests {
		t.Run(string(tt.dim)+"/"+tt.date, func(t *testing.T) {
			if got := PeriodKey(day(tt.date), tt.dim); got != tt.want {
				t.Errorf("PeriodKey(%s, %s) = %q, want %q", tt.date, tt.dim, got, tt.want)
			}
		})
	}
}

func TestAggregate_MonthSingleGroup(t *testing.T) {
	got, err := Aggregate(visitsOn("2024-01-15", "2024-01-31"), DimensionMonth, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 group, got %d", len(got))
	}
	if got[0].GroupKey != "month" || got[0].GroupValue != "2024-01" || got[0].Count != 2 {
		t.Errorf("unexpected group: %+v", got[0])
	}
}

func TestAggregate_TimeOrdering(t *testing.T) {
	rows := visitsOn("2024-02-10", "2023-11-03", "2024-01-20", "2023-12-24")
	got, err := Aggregate(rows, DimensionQuarter, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Q4-2023", "Q1-2024"}
	if len(got) != len(want) {
		t.Fatalf("expected %d groups, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].GroupValue != w {
			t.Errorf("group %d: expected %s, got %s", i, w, got[i].GroupValue)
		}
		if got[i].Count != 2 {
			t.Errorf("group %s: expected count 2, got %d", w, got[i].Count)
		}
	}

	months, _ := Aggregate(rows, DimensionMonth, nil)
	for i := 1; i < len(months); i++ {
		if months[i-1].GroupValue >= months[i].GroupValue {
			t.Errorf("months out of order: %s before %s", months[i-1].GroupValue, months[i].GroupValue)
		}
	}
}

func TestAggregate_AgeGroupUsesTableOrder(t *testing.T) {
	var rows []PatientVisit
	for _, age := range []int{70, 0, 12, 3, 70, -2} {
		rows = append(rows, PatientVisit{AgeAtIllness: age})
	}
	got, err := Aggregate(rows, DimensionAgeGroup, &epistat.ClinicalAgeBands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []struct {
		band  string
		count int64
	}{
		{"<1", 2},
		{"1-4", 1},
		{"10-14", 1},
		{"65+", 2},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d groups, got %+v", len(want), got)
	}
	for i, w := range want {
		if got[i].GroupValue != w.band || got[i].Count != w.count {
			t.Errorf("group %d: expected %s=%d, got %s=%d", i, w.band, w.count, got[i].GroupValue, got[i].Count)
		}
	}
}

func TestAggregate_AgeGroupNeedsTable(t *testing.T) {
	_, err := Aggregate([]PatientVisit{{AgeAtIllness: 4}}, DimensionAgeGroup, nil)
	if !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
}

func TestAggregate_UnknownDimension(t *testing.T) {
	_, err := Aggregate(nil, Dimension("ward"), nil)
	if !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
}

func TestAggregate_HospitalAndDisease(t *testing.T) {
	d1, d2 := uuid.New(), uuid.New()
	rows := []PatientVisit{
		{HospitalCode: "H2", DiseaseID: d1},
		{HospitalCode: "H1", DiseaseID: d1},
		{HospitalCode: "H2", DiseaseID: d2},
	}
	byHospital, err := Aggregate(rows, DimensionHospital, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byHospital) != 2 || byHospital[0].HospitalCode != "H1" || byHospital[1].Count != 2 {
		t.Errorf("unexpected hospital groups: %+v", byHospital)
	}

	byDisease, err := Aggregate(rows, DimensionDisease, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byDisease) != 2 {
		t.Fatalf("expected 2 disease groups, got %d", len(byDisease))
	}
	for _, g := range byDisease {
		if g.DiseaseID == nil || g.DiseaseID.String() != g.GroupValue {
			t.Errorf("expected disease id on row, got %+v", g)
		}
	}
}

func TestAggregate_GenderBuckets(t *testing.T) {
	rows := []PatientVisit{
		{Gender: GenderMale}, {Gender: "male"}, {Gender: GenderFemale},
		{Gender: GenderOther}, {Gender: ""}, {Gender: "X"},
	}
	got, err := Aggregate(rows, DimensionGender, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	counts := make(map[string]int64)
	for _, g := range got {
		counts[g.GroupValue] = g.Count
	}
	want := map[string]int64{"male": 2, "female": 1, "other": 1, "unspecified": 2}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("%s: expected %d, got %d", k, v, counts[k])
		}
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	rows := []PatientVisit{
		{Occupation: "nurse"}, {Occupation: "farmer"}, {Occupation: ""}, {Occupation: "nurse"},
	}
	first, _ := Aggregate(rows, DimensionOccupation, nil)
	for i := 0; i < 20; i++ {
		again, _ := Aggregate(rows, DimensionOccupation, nil)
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d differs at %d: %+v vs %+v", i, j, first[j], again[j])
			}
		}
	}
	if first[len(first)-1].GroupValue != UnspecifiedOccupation {
		t.Errorf("expected empty occupation to group as unspecified, got %+v", first)
	}
}

func TestAggregateByGender(t *testing.T) {
	rows := []PatientVisit{
		{AgeAtIllness: 30, Gender: GenderMale},
		{AgeAtIllness: 31, Gender: GenderMale},
		{AgeAtIllness: 33, Gender: GenderFemale},
		{AgeAtIllness: 2, Gender: GenderOther},
	}
	got, err := AggregateByGender(rows, DimensionAgeGroup, &epistat.ClinicalAgeBands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []AggregatedCount{
		{GroupKey: "age_group_male", GroupValue: "1-4", Count: 0},
		{GroupKey: "age_group_female", GroupValue: "1-4", Count: 0},
		{GroupKey: "age_group_male", GroupValue: "25-34", Count: 2},
		{GroupKey: "age_group_female", GroupValue: "25-34", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestAggregateByGender_RejectsGender(t *testing.T) {
	_, err := AggregateByGender(nil, DimensionGender, nil)
	if !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
}

func TestParseTimeDimension(t *testing.T) {
	for _, p := range []string{"day", "week", "month", "quarter", "year"} {
		if _, err := ParseTimeDimension(p); err != nil {
			t.Errorf("%s: unexpected error %v", p, err)
		}
	}
	if _, err := ParseTimeDimension("hospital"); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
}
