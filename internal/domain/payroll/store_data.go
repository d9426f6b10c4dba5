package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"clinic/internal/platform/db"
)

const (
	periodColumns = `id, start_date, end_date, frequency, pay_date, closed, created_at`
	runColumns    = `id, period_id, status, tax_status, COALESCE(tax_error, ''), tax_computed_at,
    created_by, created_at, COALESCE(posted_by, ''), posted_at, COALESCE(voided_by, ''), voided_at,
    COALESCE(void_reason, ''), updated_at`
	recordColumns = `id, run_id, employee_id, hourly_rate, regular_hours, overtime_hours, regular_pay, overtime_pay,
    bonus_pay, gross_pay, deductions, federal_tax, state_tax, social_security_tax, medicare_tax, unemployment_tax,
    COALESCE(tax_jurisdiction, ''), COALESCE(tax_config_id::text, ''), net_pay, warnings, computed_at, created_at`

	constraintPeriodOverlap = "pay_periods_no_overlap"
	constraintActiveRun     = "payroll_runs_active_period_uniq"
	constraintRecordUniq    = "payroll_records_run_id_employee_id_key"
)

func (s *Store) CreatePeriod(ctx context.Context, in PeriodInput, createdBy string) (PayPeriod, error) {
	row := s.DB.QueryRow(ctx, `
    INSERT INTO pay_periods (start_date, end_date, frequency, pay_date, created_by)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING `+periodColumns, in.StartDate, in.EndDate, in.Frequency, in.PayDate, createdBy)
	period, err := scanPeriod(row)
	if db.IsExclusionViolation(err, constraintPeriodOverlap) {
		return PayPeriod{}, ErrPeriodOverlap
	}
	return period, err
}

func (s *Store) GetPeriod(ctx context.Context, id string) (PayPeriod, error) {
	if _, err := uuid.Parse(id); err != nil {
		return PayPeriod{}, ErrPeriodNotFound
	}
	period, err := scanPeriod(s.DB.QueryRow(ctx, `SELECT `+periodColumns+` FROM pay_periods WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PayPeriod{}, ErrPeriodNotFound
	}
	return period, err
}

func (s *Store) ListPeriods(ctx context.Context, limit, offset int) ([]PayPeriod, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+periodColumns+`
    FROM pay_periods
    ORDER BY start_date DESC
    LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []PayPeriod
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	return periods, rows.Err()
}

func (s *Store) OverlappingPeriodExists(ctx context.Context, frequency string, start, end time.Time) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM pay_periods
      WHERE frequency = $1 AND start_date <= $3 AND end_date >= $2
    )
  `, frequency, start, end).Scan(&exists)
	return exists, err
}

func (s *Store) ActiveRunForPeriod(ctx context.Context, periodID string) (Run, error) {
	if _, err := uuid.Parse(periodID); err != nil {
		return Run{}, ErrRunNotFound
	}
	run, err := scanRun(s.DB.QueryRow(ctx, `
    SELECT `+runColumns+`
    FROM payroll_runs
    WHERE period_id = $1 AND status <> 'voided'
  `, periodID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// InsertRun creates a draft run and closes the period. The partial unique index turns a lost race into errActiveRunExists.
func (s *Store) InsertRun(ctx context.Context, periodID, createdBy string) (Run, error) {
	var run Run
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		run, err = scanRun(tx.QueryRow(ctx, `
      INSERT INTO payroll_runs (period_id, status, tax_status, created_by)
      VALUES ($1, 'draft', 'not_started', $2)
      RETURNING `+runColumns, periodID, createdBy))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE pay_periods SET closed = true WHERE id = $1`, periodID)
		return err
	})
	if db.IsUniqueViolation(err, constraintActiveRun) {
		return Run{}, errActiveRunExists
	}
	return run, err
}

func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	return getRun(ctx, s.DB, id, false)
}

func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM payroll_runs WHERE 1=1`
	var args []any
	if filter.PeriodID != "" {
		if _, err := uuid.Parse(filter.PeriodID); err != nil {
			return []Run{}, nil
		}
		args = append(args, filter.PeriodID)
		query += " AND period_id = $" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRun locks the row, applies fn and writes the lifecycle columns back in one transaction.
func (s *Store) UpdateRun(ctx context.Context, id string, fn func(*Run) error) (Run, error) {
	var run Run
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		run, err = getRun(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&run); err != nil {
			return err
		}
		return writeRun(ctx, tx, &run)
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s *Store) ListRecords(ctx context.Context, runID string) ([]Record, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, ErrRunNotFound
	}
	return listRecords(ctx, s.DB, runID)
}

func (s *Store) InsertRecords(ctx context.Context, runID string, records []Record) ([]Record, error) {
	var created []Record
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		run, err := getRun(ctx, tx, runID, true)
		if err != nil {
			return err
		}
		if run.Status != RunStatusDraft {
			return ErrRecordsFrozen
		}
		for _, rec := range records {
			deductions, err := json.Marshal(rec.Deductions)
			if err != nil {
				return err
			}
			row := tx.QueryRow(ctx, `
        INSERT INTO payroll_records (run_id, employee_id, hourly_rate, regular_hours, overtime_hours,
          regular_pay, overtime_pay, bonus_pay, gross_pay, deductions)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING `+recordColumns,
				runID, rec.EmployeeID, rec.HourlyRate, rec.RegularHours, rec.OvertimeHours,
				rec.RegularPay, rec.OvertimePay, rec.BonusPay, rec.GrossPay, deductions)
			saved, err := scanRecord(row)
			if db.IsUniqueViolation(err, constraintRecordUniq) {
				return ErrDuplicateEmployee
			}
			if err != nil {
				return err
			}
			created = append(created, saved)
		}
		_, err = tx.Exec(ctx, `UPDATE payroll_runs SET updated_at = now() WHERE id = $1`, runID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ApplyTaxResults holds the run row lock for the whole computation, so a concurrent void waits for it to finish.
func (s *Store) ApplyTaxResults(ctx context.Context, runID string, fn TaxApplyFunc) (Run, []Record, error) {
	var (
		run     Run
		results []Record
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		run, err = getRun(ctx, tx, runID, true)
		if err != nil {
			return err
		}
		period, err := scanPeriod(tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM pay_periods WHERE id = $1`, run.PeriodID))
		if err != nil {
			return err
		}
		records, err := listRecords(ctx, tx, runID)
		if err != nil {
			return err
		}
		results, err = fn(run, period, records)
		if err != nil {
			return err
		}
		for _, rec := range results {
			if err := writeTaxes(ctx, tx, rec); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		run.TaxStatus = TaxStatusCompleted
		run.TaxError = ""
		run.TaxComputedAt = &now
		return writeRun(ctx, tx, &run)
	})
	if err != nil {
		return Run{}, nil, err
	}
	return run, results, nil
}

func getRun(ctx context.Context, q querier, id string, forUpdate bool) (Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Run{}, ErrRunNotFound
	}
	query := `SELECT ` + runColumns + ` FROM payroll_runs WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	run, err := scanRun(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func writeRun(ctx context.Context, q querier, run *Run) error {
	return q.QueryRow(ctx, `
    UPDATE payroll_runs
    SET status = $2, tax_status = $3, tax_error = $4, tax_computed_at = $5,
        posted_by = $6, posted_at = $7, voided_by = $8, voided_at = $9, void_reason = $10,
        updated_at = now()
    WHERE id = $1
    RETURNING updated_at
  `, run.ID, run.Status, run.TaxStatus, nullIfEmpty(run.TaxError), run.TaxComputedAt,
		nullIfEmpty(run.PostedBy), run.PostedAt, nullIfEmpty(run.VoidedBy), run.VoidedAt, nullIfEmpty(run.VoidReason),
	).Scan(&run.UpdatedAt)
}

func writeTaxes(ctx context.Context, q querier, rec Record) error {
	if rec.Taxes == nil || rec.NetPay == nil {
		return nil
	}
	deductions, err := json.Marshal(rec.Deductions)
	if err != nil {
		return err
	}
	warnings, err := json.Marshal(rec.Warnings)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
    UPDATE payroll_records
    SET regular_pay = $2, overtime_pay = $3, bonus_pay = $4, gross_pay = $5, deductions = $6,
        federal_tax = $7, state_tax = $8, social_security_tax = $9, medicare_tax = $10, unemployment_tax = $11,
        tax_jurisdiction = $12, tax_config_id = $13, net_pay = $14, warnings = $15, computed_at = $16
    WHERE id = $1
  `, rec.ID, rec.RegularPay, rec.OvertimePay, rec.BonusPay, rec.GrossPay, deductions,
		rec.Taxes.Federal, rec.Taxes.State, rec.Taxes.SocialSecurity, rec.Taxes.Medicare, rec.Taxes.Unemployment,
		nullIfEmpty(rec.Taxes.Jurisdiction), nullIfEmpty(rec.Taxes.ConfigID), *rec.NetPay, warnings, rec.ComputedAt)
	return err
}

func listRecords(ctx context.Context, q querier, runID string) ([]Record, error) {
	rows, err := q.Query(ctx, `
    SELECT `+recordColumns+`
    FROM payroll_records
    WHERE run_id = $1
    ORDER BY employee_id
  `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanPeriod(row pgx.Row) (PayPeriod, error) {
	var p PayPeriod
	err := row.Scan(&p.ID, &p.StartDate, &p.EndDate, &p.Frequency, &p.PayDate, &p.Closed, &p.CreatedAt)
	return p, err
}

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.PeriodID, &r.Status, &r.TaxStatus, &r.TaxError, &r.TaxComputedAt,
		&r.CreatedBy, &r.CreatedAt, &r.PostedBy, &r.PostedAt, &r.VoidedBy, &r.VoidedAt,
		&r.VoidReason, &r.UpdatedAt)
	return r, err
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec                                      Record
		deductions, warnings                     []byte
		federal, state, social, medicare, unempl decimal.NullDecimal
		jurisdiction, configID                   string
		net                                      decimal.NullDecimal
	)
	err := row.Scan(&rec.ID, &rec.RunID, &rec.EmployeeID, &rec.HourlyRate, &rec.RegularHours, &rec.OvertimeHours,
		&rec.RegularPay, &rec.OvertimePay, &rec.BonusPay, &rec.GrossPay, &deductions,
		&federal, &state, &social, &medicare, &unempl, &jurisdiction, &configID, &net, &warnings,
		&rec.ComputedAt, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Deductions = []Deduction{}
	if len(deductions) > 0 {
		if err := json.Unmarshal(deductions, &rec.Deductions); err != nil {
			return Record{}, err
		}
	}
	rec.Warnings = []string{}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &rec.Warnings); err != nil {
			return Record{}, err
		}
	}
	if net.Valid {
		value := net.Decimal
		rec.NetPay = &value
		rec.Taxes = &Taxes{
			Federal:        federal.Decimal,
			State:          state.Decimal,
			SocialSecurity: social.Decimal,
			Medicare:       medicare.Decimal,
			Unemployment:   unempl.Decimal,
			Jurisdiction:   strings.TrimSpace(jurisdiction),
			ConfigID:       configID,
		}
	}
	return rec, nil
}
