package surveillance

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/casereport/casereport/pkg/epistat"
)

// Cache stores finished report payloads. Implementations must be safe for
// concurrent use; a miss is (false, nil).
type Cache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, v interface{}) error
}

// Recorder receives one observation per report request.
type Recorder interface {
	ObserveReport(report, outcome string, elapsed time.Duration)
}

// Report outcomes passed to Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeCached   = "cached"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

type Service struct {
	repo     Repository
	cache    Cache
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithCache enables read-through caching of report payloads.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the clock used to default the report year.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dataset struct {
	visits      []PatientVisit
	populations []PopulationRecord
	hospitals   []Hospital
}

type fetchPlan struct {
	visits      VisitQuery
	populations *PopulationQuery
	hospitals   bool
}

// fetch issues the independent reads of a report concurrently. The first
// failure cancels the others and is returned unchanged.
func (s *Service) fetch(ctx context.Context, plan fetchPlan) (dataset, error) {
	var ds dataset
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.repo.ListPatientVisits(ctx, plan.visits)
		ds.visits = rows
		return err
	})
	if plan.populations != nil {
		g.Go(func() error {
			rows, err := s.repo.ListPopulations(ctx, *plan.populations)
			ds.populations = rows
			return err
		})
	}
	if plan.hospitals {
		g.Go(func() error {
			rows, err := s.repo.ListActiveHospitals(ctx)
			ds.hospitals = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return dataset{}, err
	}
	return ds, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrInvalidDimension):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

// runReport is the shared assembler pipeline: normalize, resolve the disease,
// consult the cache, build, store. scope, when set, narrows the normalized
// filter before it is keyed and built.
func runReport[T any](ctx context.Context, s *Service, report, variant string, raw RawFilter, scope func(ReportFilter) ReportFilter, build func(context.Context, Disease, ReportFilter) (*T, error)) (*T, error) {
	start := time.Now()
	outcome := OutcomeOK
	var out *T
	err := func() error {
		f, err := NormalizeFilter(raw, s.now())
		if err != nil {
			return err
		}
		if !isAll(raw.AgeGroup) && f.AgeGroup.IsAny() {
			s.logger.Debug().Str("age_group", raw.AgeGroup).Msg("ignoring unknown age group")
		}
		if scope != nil {
			f = scope(f)
		}

		disease, err := s.repo.GetDisease(ctx, f.DiseaseID)
		if err != nil {
			return err
		}

		key := report + ":" + variant + ":" + f.Key()
		if s.cache != nil {
			var cached T
			hit, err := s.cache.Get(ctx, key, &cached)
			if err != nil {
				s.logger.Warn().Err(err).Str("report", report).Msg("report cache read failed")
			} else if hit {
				out, outcome = &cached, OutcomeCached
				return nil
			}
		}

		out, err = build(ctx, *disease, f)
		if err != nil {
			return err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, out); err != nil {
				s.logger.Warn().Err(err).Str("report", report).Msg("report cache write failed")
			}
		}
		return nil
	}()
	if err != nil {
		outcome = outcomeOf(err)
		out = nil
	}

	elapsed := time.Since(start)
	if s.recorder != nil {
		s.recorder.ObserveReport(report, outcome, elapsed)
	}
	s.logger.Debug().
		Str("report", report).
		Str("outcome", outcome).
		Str("disease_id", raw.DiseaseID).
		Dur("duration", elapsed).
		Msg("report")
	return out, err
}

func (s *Service) warnNoPopulation(report string, d Disease) {
	s.logger.Warn().Str("report", report).Str("disease", d.Code).Msg("no population data for report scope")
}

// GetAgeGroupsReport distributes cases over the clinical age bands.
func (s *Service) GetAgeGroupsReport(ctx context.Context, raw RawFilter) (*AgeGroupsReport, error) {
	return runReport(ctx, s, ReportAgeGroups, "", raw, nil, s.buildAgeGroups)
}

func (s *Service) buildAgeGroups(ctx context.Context, d Disease, f ReportFilter) (*AgeGroupsReport, error) {
	pq := f.PopulationQuery()
	ds, err := s.fetch(ctx, fetchPlan{visits: f.VisitQuery(), populations: &pq})
	if err != nil {
		return nil, err
	}

	bands := &epistat.ClinicalAgeBands
	counts, err := Aggregate(ds.visits, DimensionAgeGroup, bands)
	if err != nil {
		return nil, err
	}
	split, err := AggregateByGender(ds.visits, DimensionAgeGroup, bands)
	if err != nil {
		return nil, err
	}
	male := make(map[string]int64)
	female := make(map[string]int64)
	for _, r := range split {
		switch r.GroupKey {
		case string(DimensionAgeGroup) + "_" + genderKeyMale:
			male[r.GroupValue] = r.Count
		case string(DimensionAgeGroup) + "_" + genderKeyFemale:
			female[r.GroupValue] = r.Count
		}
	}

	total := int64(len(ds.visits))
	population := sumPopulation(ds.populations)
	overall := epistat.Incidence(total, population)

	rep := &AgeGroupsReport{
		Disease: d,
		Filters: f,
		Summary: AgeGroupsSummary{
			TotalPatients:     total,
			TotalPopulation:   population,
			IncidenceRate:     overall.Rate,
			HasPopulationData: overall.HasDenominatorData,
		},
		AgeGroups: make([]AgeGroupRow, 0, len(counts)),
	}
	if !overall.HasDenominatorData {
		rep.Summary.Note = NoPopulationNote
		s.warnNoPopulation(ReportAgeGroups, d)
	}
	for _, c := range counts {
		if c.Count == 0 {
			continue
		}
		rate := epistat.Incidence(c.Count, population)
		rep.AgeGroups = append(rep.AgeGroups, AgeGroupRow{
			AgeGroup:          c.GroupValue,
			Count:             c.Count,
			Male:              male[c.GroupValue],
			Female:            female[c.GroupValue],
			Percentage:        epistat.Percentage(c.Count, total),
			IncidenceRate:     rate.Rate,
			HasPopulationData: rate.HasDenominatorData,
		})
	}
	return rep, nil
}

// GetGenderRatioReport reports the male:female ratio. Any gender filter is
// dropped so every category stays visible.
func (s *Service) GetGenderRatioReport(ctx context.Context, raw RawFilter) (*GenderRatioReport, error) {
	return runReport(ctx, s, ReportGenderRatio, "", raw, ReportFilter.WithoutGender, s.buildGenderRatio)
}

func (s *Service) buildGenderRatio(ctx context.Context, d Disease, f ReportFilter) (*GenderRatioReport, error) {
	ds, err := s.fetch(ctx, fetchPlan{visits: f.VisitQuery()})
	if err != nil {
		return nil, err
	}
	counts, err := Aggregate(ds.visits, DimensionGender, nil)
	if err != nil {
		return nil, err
	}

	var b GenderBreakdown
	for _, c := range counts {
		switch c.GroupValue {
		case genderKeyMale:
			b.Male = c.Count
		case genderKeyFemale:
			b.Female = c.Count
		case genderKeyOther:
			b.Other = c.Count
		default:
			b.Unspecified += c.Count
		}
	}
	total := int64(len(ds.visits))

	simplified := epistat.Simplify(b.Male, b.Female)
	ratio := GenderRatio{Text: simplified.Text, Simplified: simplified}
	if simplified.Denominator != 0 {
		ratio.Male = simplified.Decimal
		ratio.Female = 1
	}

	return &GenderRatioReport{
		Disease: d,
		Filters: f,
		Summary: GenderRatioSummary{TotalPatients: total},
		Counts:  b,
		Percentages: GenderPercentages{
			Male:        epistat.Percentage(b.Male, total),
			Female:      epistat.Percentage(b.Female, total),
			Other:       epistat.Percentage(b.Other, total),
			Unspecified: epistat.Percentage(b.Unspecified, total),
		},
		Ratio: ratio,
	}, nil
}

// GetIncidenceRatesReport computes incidence, mortality and case fatality for
// the disease overall and per active hospital.
func (s *Service) GetIncidenceRatesReport(ctx context.Context, raw RawFilter) (*IncidenceRatesReport, error) {
	return runReport(ctx, s, ReportIncidenceRates, "", raw, nil, s.buildIncidenceRates)
}

func (s *Service) buildIncidenceRates(ctx context.Context, d Disease, f ReportFilter) (*IncidenceRatesReport, error) {
	pq := f.PopulationQuery()
	ds, err := s.fetch(ctx, fetchPlan{visits: f.VisitQuery(), populations: &pq, hospitals: true})
	if err != nil {
		return nil, err
	}

	total := int64(len(ds.visits))
	deaths := countDeaths(ds.visits)
	population := sumPopulation(ds.populations)
	incidence := epistat.Incidence(total, population)

	rep := &IncidenceRatesReport{
		Disease: d,
		Filters: f,
		Summary: IncidenceSummary{
			TotalPatients:     total,
			TotalDeaths:       deaths,
			Population:        population,
			IncidenceRate:     incidence.Rate,
			MortalityRate:     epistat.MortalityRate(deaths, population, epistat.PerHundredThousand),
			CaseFatalityRate:  epistat.CaseFatalityRate(deaths, total),
			HasPopulationData: incidence.HasDenominatorData,
		},
	}
	if !incidence.HasDenominatorData {
		rep.Summary.Note = NoPopulationNote
		s.warnNoPopulation(ReportIncidenceRates, d)
	}

	groups, err := collect(ds.visits, DimensionHospital, nil)
	if err != nil {
		return nil, err
	}
	byHospital := make(map[string]*group, len(groups))
	for _, g := range groups {
		byHospital[g.value] = g
	}
	popByHospital := populationByHospital(ds.populations)

	// Every active hospital is computed first, then zero-patient rows are dropped.
	rows := make([]HospitalRate, 0, len(ds.hospitals))
	for _, h := range ds.hospitals {
		var patients, died int64
		if g, ok := byHospital[h.Code]; ok {
			patients, died = g.count, g.deaths
		}
		pop := popByHospital[h.Code]
		rows = append(rows, HospitalRate{
			HospitalCode:      h.Code,
			HospitalName:      h.Name,
			Patients:          patients,
			Deaths:            died,
			Population:        pop,
			IncidenceRate:     epistat.IncidenceRate(patients, pop, epistat.PerHundredThousand),
			MortalityRate:     epistat.MortalityRate(died, pop, epistat.PerHundredThousand),
			CaseFatalityRate:  epistat.CaseFatalityRate(died, patients),
			HasPopulationData: pop > 0,
		})
	}
	rep.Hospitals = rows[:0]
	for _, r := range rows {
		if r.Patients > 0 {
			rep.Hospitals = append(rep.Hospitals, r)
		}
	}
	sort.Slice(rep.Hospitals, func(i, j int) bool {
		a, b := rep.Hospitals[i], rep.Hospitals[j]
		if a.Patients != b.Patients {
			return a.Patients > b.Patients
		}
		return a.HospitalCode < b.HospitalCode
	})
	return rep, nil
}

// GetOccupationReport distributes cases over occupations. Any occupation
// filter is dropped.
func (s *Service) GetOccupationReport(ctx context.Context, raw RawFilter) (*OccupationReport, error) {
	return runReport(ctx, s, ReportOccupations, "", raw, ReportFilter.WithoutOccupation, s.buildOccupations)
}

func (s *Service) buildOccupations(ctx context.Context, d Disease, f ReportFilter) (*OccupationReport, error) {
	ds, err := s.fetch(ctx, fetchPlan{visits: f.VisitQuery()})
	if err != nil {
		return nil, err
	}
	counts, err := Aggregate(ds.visits, DimensionOccupation, nil)
	if err != nil {
		return nil, err
	}
	// Aggregate orders by name, so a stable sort keeps name order among ties.
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })

	total := int64(len(ds.visits))
	rep := &OccupationReport{
		Disease:     d,
		Filters:     f,
		Summary:     OccupationSummary{TotalPatients: total, Occupations: len(counts)},
		Occupations: make([]OccupationRow, 0, len(counts)),
	}
	for _, c := range counts {
		rep.Occupations = append(rep.Occupations, OccupationRow{
			Occupation: c.GroupValue,
			Count:      c.Count,
			Percentage: epistat.Percentage(c.Count, total),
		})
	}
	return rep, nil
}

// GetTrendReport buckets cases and deaths by period (day, week, month,
// quarter or year; month when empty).
func (s *Service) GetTrendReport(ctx context.Context, raw RawFilter, period string) (*TrendReport, error) {
	if period == "" {
		period = string(DimensionMonth)
	}
	dim, err := ParseTimeDimension(period)
	if err != nil {
		if s.recorder != nil {
			s.recorder.ObserveReport(ReportTrends, OutcomeInvalid, 0)
		}
		return nil, err
	}
	return runReport(ctx, s, ReportTrends, string(dim), raw, nil, func(ctx context.Context, d Disease, f ReportFilter) (*TrendReport, error) {
		ds, err := s.fetch(ctx, fetchPlan{visits: f.VisitQuery()})
		if err != nil {
			return nil, err
		}
		groups, err := collect(ds.visits, dim, nil)
		if err != nil {
			return nil, err
		}
		rep := &TrendReport{
			Disease: d,
			Filters: f,
			Period:  dim,
			Summary: TrendSummary{
				TotalPatients: int64(len(ds.visits)),
				TotalDeaths:   countDeaths(ds.visits),
				Periods:       len(groups),
			},
			Series: make([]TrendPoint, 0, len(groups)),
		}
		for _, g := range groups {
			rep.Series = append(rep.Series, TrendPoint{
				Period:           g.value,
				Start:            g.start.Format(dateLayout),
				Cases:            g.count,
				Deaths:           g.deaths,
				CaseFatalityRate: epistat.CaseFatalityRate(g.deaths, g.count),
			})
		}
		return rep, nil
	})
}
