package payconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	cryptoutil "clinic/internal/platform/crypto"
)

func (s *Store) TaxConfigFor(ctx context.Context, jurisdiction string, payDate time.Time) (TaxConfig, error) {
	var cfg TaxConfig
	var exemptions []byte
	err := s.DB.QueryRow(ctx, `
    SELECT id, jurisdiction, effective_date, federal_rate, state_rate, social_security_rate, medicare_rate, unemployment_rate, exemptions
    FROM tax_configurations
    WHERE jurisdiction = $1 AND effective_date <= $2
    ORDER BY effective_date DESC
    LIMIT 1
  `, jurisdiction, payDate).Scan(&cfg.ID, &cfg.Jurisdiction, &cfg.EffectiveDate, &cfg.FederalRate, &cfg.StateRate,
		&cfg.SocialSecurityRate, &cfg.MedicareRate, &cfg.UnemploymentRate, &exemptions)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaxConfig{}, fmt.Errorf("%w: %s on %s", ErrNoTaxConfig, jurisdiction, payDate.Format("2006-01-02"))
	}
	if err != nil {
		return TaxConfig{}, err
	}
	if len(exemptions) > 0 {
		if err := json.Unmarshal(exemptions, &cfg.Exemptions); err != nil {
			return TaxConfig{}, err
		}
	}
	return cfg, nil
}

func (s *Store) ACHConfig(ctx context.Context) (ACHConfig, error) {
	var cfg ACHConfig
	err := s.DB.QueryRow(ctx, `
    SELECT id, company_name, company_id, immediate_destination, immediate_destination_name,
           immediate_origin, immediate_origin_name, originating_dfi, entry_description
    FROM ach_configurations
    WHERE active
    ORDER BY created_at DESC
    LIMIT 1
  `).Scan(&cfg.ID, &cfg.CompanyName, &cfg.CompanyID, &cfg.ImmediateDestination, &cfg.ImmediateDestinationName,
		&cfg.ImmediateOrigin, &cfg.ImmediateOriginName, &cfg.OriginatingDFI, &cfg.EntryDescription)
	if errors.Is(err, pgx.ErrNoRows) {
		return ACHConfig{}, ErrNoACHConfig
	}
	if err != nil {
		return ACHConfig{}, err
	}
	return cfg, nil
}

// BankInfo returns the active bank account per employee. Employees without one are absent from the map.
func (s *Store) BankInfo(ctx context.Context, employeeIDs []string) (map[string]BankInfo, error) {
	out := map[string]BankInfo{}
	if len(employeeIDs) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, `
    SELECT employee_id, routing_number, account_number_enc, account_last4, account_type, active
    FROM employee_bank_accounts
    WHERE active AND employee_id = ANY($1)
  `, employeeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var info BankInfo
		var sealed []byte
		if err := rows.Scan(&info.EmployeeID, &info.RoutingNumber, &sealed, &info.AccountLast4, &info.AccountType, &info.Active); err != nil {
			return nil, err
		}
		account, err := s.cipher.OpenString(sealed)
		if err != nil {
			slog.Warn("bank account decrypt failed", "employeeId", info.EmployeeID, "err", err)
			continue
		}
		info.AccountNumber = account
		out[info.EmployeeID] = info
	}
	return out, rows.Err()
}

func (s *Store) PutTaxConfig(ctx context.Context, cfg TaxConfig) error {
	exemptions, err := json.Marshal(cfg.Exemptions)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO tax_configurations (jurisdiction, effective_date, federal_rate, state_rate, social_security_rate, medicare_rate, unemployment_rate, exemptions)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    ON CONFLICT (jurisdiction, effective_date) DO UPDATE
      SET federal_rate = EXCLUDED.federal_rate,
          state_rate = EXCLUDED.state_rate,
          social_security_rate = EXCLUDED.social_security_rate,
          medicare_rate = EXCLUDED.medicare_rate,
          unemployment_rate = EXCLUDED.unemployment_rate,
          exemptions = EXCLUDED.exemptions
  `, cfg.Jurisdiction, cfg.EffectiveDate, cfg.FederalRate, cfg.StateRate, cfg.SocialSecurityRate, cfg.MedicareRate, cfg.UnemploymentRate, exemptions)
	return err
}

func (s *Store) PutACHConfig(ctx context.Context, cfg ACHConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, "UPDATE ach_configurations SET active = false WHERE active"); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO ach_configurations (company_name, company_id, immediate_destination, immediate_destination_name,
                                    immediate_origin, immediate_origin_name, originating_dfi, entry_description)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, cfg.CompanyName, cfg.CompanyID, cfg.ImmediateDestination, cfg.ImmediateDestinationName,
		cfg.ImmediateOrigin, cfg.ImmediateOriginName, cfg.OriginatingDFI, cfg.EntryDescription); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) PutBankInfo(ctx context.Context, info BankInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	sealed, err := s.cipher.SealString(info.AccountNumber)
	if err != nil {
		return err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, "UPDATE employee_bank_accounts SET active = false WHERE employee_id = $1 AND active", info.EmployeeID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO employee_bank_accounts (employee_id, routing_number, account_number_enc, account_last4, account_type, active)
    VALUES ($1,$2,$3,$4,$5,true)
  `, info.EmployeeID, info.RoutingNumber, sealed, cryptoutil.Last4(info.AccountNumber), info.AccountType); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
