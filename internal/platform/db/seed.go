package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"clinic/internal/domain/employees"
	"clinic/internal/domain/payconfig"
	cryptoutil "clinic/internal/platform/crypto"
)

var seedEmployees = []employees.Employee{
	{ID: "E-1001", Name: "Avery Nurse", Jurisdiction: "CA"},
	{ID: "E-1002", Name: "Blake Tech", Jurisdiction: "CA"},
	{ID: "E-1003", Name: "Casey Front", Jurisdiction: "US"},
}

// Seed loads development fixtures: employees, tax tables, an ACH originator and bank info for two employees.
// It is safe to run repeatedly.
func Seed(ctx context.Context, pool *pgxpool.Pool, cipher *cryptoutil.Cipher) error {
	if err := ensureEmployees(ctx, pool); err != nil {
		return err
	}
	configs := payconfig.NewStore(pool, cipher)
	if err := ensureTaxConfigs(ctx, configs); err != nil {
		return err
	}
	if err := ensureACHConfig(ctx, configs); err != nil {
		return err
	}
	return ensureBankInfo(ctx, configs)
}

func ensureEmployees(ctx context.Context, pool *pgxpool.Pool) error {
	for _, emp := range seedEmployees {
		_, err := pool.Exec(ctx, "INSERT INTO employees (id, name, jurisdiction) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
			emp.ID, emp.Name, emp.Jurisdiction)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureTaxConfigs(ctx context.Context, configs *payconfig.Store) error {
	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	exemptions := []payconfig.Exemption{
		{Frequency: "weekly", Amount: decimal.RequireFromString("50")},
		{Frequency: "biweekly", Amount: decimal.RequireFromString("100")},
		{Frequency: "monthly", Amount: decimal.RequireFromString("216.67")},
	}
	for _, cfg := range []payconfig.TaxConfig{
		{Jurisdiction: "CA", StateRate: decimal.RequireFromString("0.05")},
		{Jurisdiction: "US", StateRate: decimal.Zero},
	} {
		cfg.EffectiveDate = effective
		cfg.FederalRate = decimal.RequireFromString("0.12")
		cfg.SocialSecurityRate = decimal.RequireFromString("0.062")
		cfg.MedicareRate = decimal.RequireFromString("0.0145")
		cfg.UnemploymentRate = decimal.RequireFromString("0.006")
		cfg.Exemptions = exemptions
		if err := configs.PutTaxConfig(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func ensureACHConfig(ctx context.Context, configs *payconfig.Store) error {
	_, err := configs.ACHConfig(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, payconfig.ErrNoACHConfig) {
		return err
	}
	return configs.PutACHConfig(ctx, payconfig.ACHConfig{
		CompanyName:              "Lakeside Clinic",
		CompanyID:                "1234567890",
		ImmediateDestination:     "021000021",
		ImmediateDestinationName: "DEMO BANK",
		ImmediateOrigin:          "1234567890",
		ImmediateOriginName:      "LAKESIDE CLINIC",
		OriginatingDFI:           "02100002",
		EntryDescription:         "PAYROLL",
	})
}

func ensureBankInfo(ctx context.Context, configs *payconfig.Store) error {
	accounts := []payconfig.BankInfo{
		{EmployeeID: "E-1001", RoutingNumber: "011000015", AccountNumber: "000123456789", AccountType: payconfig.AccountTypeChecking},
		{EmployeeID: "E-1002", RoutingNumber: "121000358", AccountNumber: "98765432", AccountType: payconfig.AccountTypeSavings},
	}
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.EmployeeID)
	}
	existing, err := configs.BankInfo(ctx, ids)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if _, ok := existing[a.EmployeeID]; ok {
			continue
		}
		if err := configs.PutBankInfo(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
