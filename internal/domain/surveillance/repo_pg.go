package surveillance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// ageExpr derives age at illness from the stored birthday. Rows without a
// birthday are treated as age 0.
const ageExpr = `GREATEST(COALESCE(DATE_PART('year', AGE(v.illness_date, v.birthday))::int, 0), 0)`

// occupationExpr mirrors PatientVisit.occupationKey.
const occupationExpr = `COALESCE(NULLIF(TRIM(v.occupation), ''), '` + UnspecifiedOccupation + `')`

const visitCols = `v.id, v.hospital_code, v.disease_id, COALESCE(v.gender, ''), ` + ageExpr + `,
	v.illness_date, COALESCE(v.patient_condition, ''), v.death_date, COALESCE(v.occupation, '')`

func (r *repoPG) GetDisease(ctx context.Context, id uuid.UUID) (*Disease, error) {
	var d Disease
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, active FROM disease
		WHERE id = $1 AND active AND deleted_at IS NULL`, id).
		Scan(&d.ID, &d.Code, &d.Name, &d.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("disease %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// visitWhere renders q as a WHERE clause with positional args.
func visitWhere(q VisitQuery) (string, []interface{}) {
	clauses := []string{"v.deleted_at IS NULL", "v.disease_id = $1"}
	args := []interface{}{q.DiseaseID}
	argIdx := 2

	add := func(format string, v interface{}) {
		clauses = append(clauses, fmt.Sprintf(format, argIdx))
		args = append(args, v)
		argIdx++
	}

	if q.HospitalCode != nil {
		add("v.hospital_code = $%d", *q.HospitalCode)
	}
	if q.Gender != nil {
		add("UPPER(v.gender) = $%d", strings.ToUpper(string(*q.Gender)))
	}
	if q.MinAge != nil {
		add(ageExpr+" >= $%d", *q.MinAge)
	}
	if q.MaxAge != nil {
		add(ageExpr+" <= $%d", *q.MaxAge)
	}
	if q.Occupation != nil {
		add(occupationExpr+" = $%d", *q.Occupation)
	}
	if q.From != nil {
		add("v.illness_date >= $%d::date", *q.From)
	}
	if q.Until != nil {
		add("v.illness_date < $%d::date", *q.Until)
	}
	return strings.Join(clauses, " AND "), args
}

func (r *repoPG) ListPatientVisits(ctx context.Context, q VisitQuery) ([]PatientVisit, error) {
	where, args := visitWhere(q)
	rows, err := r.pool.Query(ctx, `SELECT `+visitCols+` FROM patient_visit v WHERE `+where+` ORDER BY v.illness_date, v.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PatientVisit
	for rows.Next() {
		var v PatientVisit
		var gender string
		if err := rows.Scan(&v.ID, &v.HospitalCode, &v.DiseaseID, &gender, &v.AgeAtIllness,
			&v.IllnessDate, &v.PatientCondition, &v.DeathDate, &v.Occupation); err != nil {
			return nil, err
		}
		v.Gender = Gender(gender)
		items = append(items, v)
	}
	return items, rows.Err()
}

func populationWhere(q PopulationQuery) (string, []interface{}) {
	clauses := []string{"deleted_at IS NULL"}
	var args []interface{}
	argIdx := 1
	if q.Year != nil {
		clauses = append(clauses, fmt.Sprintf("year = $%d", argIdx))
		args = append(args, *q.Year)
		argIdx++
	}
	if q.HospitalCode != nil {
		clauses = append(clauses, fmt.Sprintf("hospital_code = $%d", argIdx))
		args = append(args, *q.HospitalCode)
	}
	return strings.Join(clauses, " AND "), args
}

func (r *repoPG) ListPopulations(ctx context.Context, q PopulationQuery) ([]PopulationRecord, error) {
	where, args := populationWhere(q)
	rows, err := r.pool.Query(ctx, `SELECT year, hospital_code, headcount FROM population WHERE `+where+` ORDER BY year, hospital_code`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PopulationRecord
	for rows.Next() {
		var p PopulationRecord
		if err := rows.Scan(&p.Year, &p.HospitalCode, &p.Count); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) ListActiveHospitals(ctx context.Context) ([]Hospital, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name FROM hospital WHERE active AND deleted_at IS NULL ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Hospital
	for rows.Next() {
		var h Hospital
		if err := rows.Scan(&h.Code, &h.Name); err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}
