//go:build integration

package integration

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/casereport/casereport/internal/domain/surveillance"
	"github.com/casereport/casereport/internal/platform/cache"
)

var (
	measlesID  = uuid.MustParse("7b1c3f9e-2f4a-4c1e-9d3b-1a2b3c4d5e6f")
	retiredID  = uuid.MustParse("0c9d8e7f-6a5b-4c3d-8e2f-1a0b9c8d7e6f")
	reportTime = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

// seedOutbreak loads two active hospitals with 2024 populations, one closed
// hospital, and four measles visits in 2024 plus rows that every report
// must ignore.
func seedOutbreak(t *testing.T, ctx context.Context) {
	t.Helper()
	resetData(t, ctx)

	mustExec(t, ctx, `INSERT INTO disease (id, code, name, active) VALUES ($1, 'MEA', 'Measles', TRUE), ($2, 'OLD', 'Retired', FALSE)`, measlesID, retiredID)
	mustExec(t, ctx, `INSERT INTO hospital (code, name, active) VALUES ('H1', 'Central', TRUE), ('H2', 'North', TRUE), ('H3', 'Closed', FALSE)`)
	mustExec(t, ctx, `INSERT INTO population (year, hospital_code, headcount) VALUES (2024, 'H1', 1000), (2024, 'H2', 500), (2023, 'H1', 900)`)

	insert := `INSERT INTO patient_visit (hospital_code, disease_id, gender, birthday, illness_date, patient_condition, death_date, occupation, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	rows := []struct {
		hospital   string
		gender     interface{}
		birthday   interface{}
		illness    time.Time
		condition  interface{}
		deathDate  interface{}
		occupation interface{}
		deletedAt  interface{}
	}{
		{"H1", "MALE", date(1990, 1, 1), date(2024, 1, 15), nil, nil, "farmer", nil},
		{"H1", "female", date(2020, 6, 1), date(2024, 2, 10), nil, nil, "", nil},
		{"H1", "MALE", nil, date(2024, 2, 20), "died", nil, "  ", nil},
		{"H2", "FEMALE", date(1950, 1, 1), date(2024, 3, 5), nil, date(2024, 3, 10), "welder", nil},
		// ignored: soft-deleted, previous year
		{"H1", "MALE", date(1980, 1, 1), date(2024, 4, 1), nil, nil, "farmer", time.Now()},
		{"H1", "MALE", date(1980, 1, 1), date(2023, 12, 31), nil, nil, "farmer", nil},
	}
	for _, r := range rows {
		mustExec(t, ctx, insert, r.hospital, measlesID, r.gender, r.birthday, r.illness, r.condition, r.deathDate, r.occupation, r.deletedAt)
	}
}

func newService(opts ...surveillance.Option) *surveillance.Service {
	opts = append([]surveillance.Option{surveillance.WithClock(func() time.Time { return reportTime })}, opts...)
	return surveillance.NewService(surveillance.NewRepoPG(globalPool), opts...)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 0.005 }

func TestRepoPG_Queries(t *testing.T) {
	ctx := context.Background()
	seedOutbreak(t, ctx)
	repo := surveillance.NewRepoPG(globalPool)

	t.Run("GetDisease", func(t *testing.T) {
		d, err := repo.GetDisease(ctx, measlesID)
		if err != nil {
			t.Fatalf("GetDisease: %v", err)
		}
		if d.Code != "MEA" || d.Name != "Measles" {
			t.Errorf("unexpected disease %+v", d)
		}
		if _, err := repo.GetDisease(ctx, retiredID); !errors.Is(err, surveillance.ErrNotFound) {
			t.Errorf("inactive disease: expected ErrNotFound, got %v", err)
		}
		if _, err := repo.GetDisease(ctx, uuid.New()); !errors.Is(err, surveillance.ErrNotFound) {
			t.Errorf("unknown disease: expected ErrNotFound, got %v", err)
		}
	})

	from, until := date(2024, 1, 1), date(2025, 1, 1)
	base := surveillance.VisitQuery{DiseaseID: measlesID, From: &from, Until: &until}

	t.Run("ListPatientVisits", func(t *testing.T) {
		visits, err := repo.ListPatientVisits(ctx, base)
		if err != nil {
			t.Fatalf("ListPatientVisits: %v", err)
		}
		if len(visits) != 4 {
			t.Fatalf("expected 4 visits, got %d", len(visits))
		}
		wantAges := []int{34, 3, 0, 74}
		for i, v := range visits {
			if v.AgeAtIllness != wantAges[i] {
				t.Errorf("visit %d age = %d, want %d", i, v.AgeAtIllness, wantAges[i])
			}
		}
		if !visits[2].IsDeath() || !visits[3].IsDeath() {
			t.Error("expected the last two visits to count as deaths")
		}
	})

	t.Run("FilterByGender", func(t *testing.T) {
		q := base
		g := surveillance.GenderFemale
		q.Gender = &g
		visits, err := repo.ListPatientVisits(ctx, q)
		if err != nil {
			t.Fatalf("ListPatientVisits: %v", err)
		}
		if len(visits) != 2 {
			t.Errorf("expected 2 female visits (case-insensitive), got %d", len(visits))
		}
	})

	t.Run("FilterByAgeAndOccupation", func(t *testing.T) {
		q := base
		minAge := 65
		q.MinAge = &minAge
		visits, err := repo.ListPatientVisits(ctx, q)
		if err != nil {
			t.Fatalf("ListPatientVisits: %v", err)
		}
		if len(visits) != 1 || visits[0].HospitalCode != "H2" {
			t.Errorf("expected the H2 visit only, got %+v", visits)
		}

		q = base
		occ := surveillance.UnspecifiedOccupation
		q.Occupation = &occ
		visits, err = repo.ListPatientVisits(ctx, q)
		if err != nil {
			t.Fatalf("ListPatientVisits: %v", err)
		}
		if len(visits) != 2 {
			t.Errorf("expected 2 visits without occupation, got %d", len(visits))
		}
	})

	t.Run("ListPopulations", func(t *testing.T) {
		year := 2024
		pops, err := repo.ListPopulations(ctx, surveillance.PopulationQuery{Year: &year})
		if err != nil {
			t.Fatalf("ListPopulations: %v", err)
		}
		if len(pops) != 2 {
			t.Fatalf("expected 2 population rows, got %d", len(pops))
		}
		if pops[0].HospitalCode != "H1" || pops[0].Count != 1000 {
			t.Errorf("unexpected first row %+v", pops[0])
		}
	})

	t.Run("ListActiveHospitals", func(t *testing.T) {
		hs, err := repo.ListActiveHospitals(ctx)
		if err != nil {
			t.Fatalf("ListActiveHospitals: %v", err)
		}
		if len(hs) != 2 || hs[0].Code != "H1" || hs[1].Code != "H2" {
			t.Errorf("unexpected hospitals %+v", hs)
		}
	})
}

func TestService_Reports(t *testing.T) {
	ctx := context.Background()
	seedOutbreak(t, ctx)
	svc := newService()
	raw := surveillance.RawFilter{DiseaseID: measlesID.String(), Year: "2024"}

	t.Run("AgeGroups", func(t *testing.T) {
		rep, err := svc.GetAgeGroupsReport(ctx, raw)
		if err != nil {
			t.Fatalf("GetAgeGroupsReport: %v", err)
		}
		if rep.Summary.TotalPatients != 4 || rep.Summary.TotalPopulation != 1500 {
			t.Errorf("unexpected summary %+v", rep.Summary)
		}
		if !approx(rep.Summary.IncidenceRate, 266.67) {
			t.Errorf("incidence = %v, want 266.67", rep.Summary.IncidenceRate)
		}
		want := []string{"<1", "1-4", "25-34", "65+"}
		if len(rep.AgeGroups) != len(want) {
			t.Fatalf("expected %d age groups, got %+v", len(want), rep.AgeGroups)
		}
		for i, g := range rep.AgeGroups {
			if g.AgeGroup != want[i] || g.Count != 1 || !approx(g.Percentage, 25) {
				t.Errorf("row %d = %+v", i, g)
			}
		}
	})

	t.Run("GenderRatio", func(t *testing.T) {
		rep, err := svc.GetGenderRatioReport(ctx, raw)
		if err != nil {
			t.Fatalf("GetGenderRatioReport: %v", err)
		}
		if rep.Counts.Male != 2 || rep.Counts.Female != 2 {
			t.Errorf("unexpected counts %+v", rep.Counts)
		}
		if rep.Ratio.Male != 1 || rep.Ratio.Female != 1 {
			t.Errorf("unexpected ratio %+v", rep.Ratio)
		}
	})

	t.Run("IncidenceRates", func(t *testing.T) {
		rep, err := svc.GetIncidenceRatesReport(ctx, raw)
		if err != nil {
			t.Fatalf("GetIncidenceRatesReport: %v", err)
		}
		s := rep.Summary
		if s.TotalPatients != 4 || s.TotalDeaths != 2 || s.Population != 1500 {
			t.Errorf("unexpected summary %+v", s)
		}
		if !approx(s.MortalityRate, 133.33) || !approx(s.CaseFatalityRate, 50) {
			t.Errorf("mortality = %v, cfr = %v", s.MortalityRate, s.CaseFatalityRate)
		}
		if len(rep.Hospitals) != 2 {
			t.Fatalf("expected 2 hospitals, got %+v", rep.Hospitals)
		}
		h1, h2 := rep.Hospitals[0], rep.Hospitals[1]
		if h1.HospitalCode != "H1" || h1.HospitalName != "Central" || h1.Patients != 3 || !approx(h1.IncidenceRate, 300) {
			t.Errorf("unexpected H1 row %+v", h1)
		}
		if h2.HospitalCode != "H2" || h2.Deaths != 1 || !approx(h2.IncidenceRate, 200) || !approx(h2.CaseFatalityRate, 100) {
			t.Errorf("unexpected H2 row %+v", h2)
		}
	})

	t.Run("Occupations", func(t *testing.T) {
		rep, err := svc.GetOccupationReport(ctx, raw)
		if err != nil {
			t.Fatalf("GetOccupationReport: %v", err)
		}
		want := []string{surveillance.UnspecifiedOccupation, "farmer", "welder"}
		if len(rep.Occupations) != len(want) {
			t.Fatalf("unexpected occupations %+v", rep.Occupations)
		}
		for i, o := range rep.Occupations {
			if o.Occupation != want[i] {
				t.Errorf("occupation %d = %q, want %q", i, o.Occupation, want[i])
			}
		}
		if rep.Occupations[0].Count != 2 || !approx(rep.Occupations[0].Percentage, 50) {
			t.Errorf("unexpected first row %+v", rep.Occupations[0])
		}
	})

	t.Run("Trends", func(t *testing.T) {
		rep, err := svc.GetTrendReport(ctx, raw, "month")
		if err != nil {
			t.Fatalf("GetTrendReport: %v", err)
		}
		if len(rep.Series) != 3 {
			t.Fatalf("expected 3 months, got %+v", rep.Series)
		}
		feb := rep.Series[1]
		if feb.Period != "2024-02" || feb.Cases != 2 || feb.Deaths != 1 || !approx(feb.CaseFatalityRate, 50) {
			t.Errorf("unexpected February point %+v", feb)
		}
	})

	t.Run("PreviousYear", func(t *testing.T) {
		r := raw
		r.Year = "2023"
		rep, err := svc.GetIncidenceRatesReport(ctx, r)
		if err != nil {
			t.Fatalf("GetIncidenceRatesReport: %v", err)
		}
		if rep.Summary.TotalPatients != 1 || !rep.Summary.HasPopulationData {
			t.Errorf("unexpected 2023 summary %+v", rep.Summary)
		}
	})

	t.Run("UnknownDisease", func(t *testing.T) {
		_, err := svc.GetAgeGroupsReport(ctx, surveillance.RawFilter{DiseaseID: uuid.NewString()})
		if !errors.Is(err, surveillance.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestService_RedisCache(t *testing.T) {
	ctx := context.Background()
	seedOutbreak(t, ctx)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rc, err := cache.New(ctx, "redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer rc.Close()

	svc := newService(surveillance.WithCache(rc))
	raw := surveillance.RawFilter{DiseaseID: measlesID.String(), Year: "2024"}

	first, err := svc.GetTrendReport(ctx, raw, "quarter")
	if err != nil {
		t.Fatalf("first GetTrendReport: %v", err)
	}

	mustExec(t, ctx, `UPDATE patient_visit SET deleted_at = NOW()`)

	second, err := svc.GetTrendReport(ctx, raw, "quarter")
	if err != nil {
		t.Fatalf("second GetTrendReport: %v", err)
	}
	if second.Summary.TotalPatients != first.Summary.TotalPatients {
		t.Errorf("expected cached report, got %d patients (first %d)", second.Summary.TotalPatients, first.Summary.TotalPatients)
	}

	if _, err := rc.Invalidate(ctx, ""); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	third, err := svc.GetTrendReport(ctx, raw, "quarter")
	if err != nil {
		t.Fatalf("third GetTrendReport: %v", err)
	}
	if third.Summary.TotalPatients != 0 {
		t.Errorf("expected fresh report after invalidate, got %d patients", third.Summary.TotalPatients)
	}
}
