package employees

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads the employee directory. Writes belong to the HR collaborator.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) GetEmployee(ctx context.Context, id string) (Employee, error) {
	var emp Employee
	err := s.DB.QueryRow(ctx, "SELECT id, name, jurisdiction FROM employees WHERE id = $1", id).Scan(&emp.ID, &emp.Name, &emp.Jurisdiction)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	if err != nil {
		return Employee{}, err
	}
	return emp, nil
}

// GetEmployees returns the employees that exist among ids, keyed by id.
func (s *Store) GetEmployees(ctx context.Context, ids []string) (map[string]Employee, error) {
	out := map[string]Employee{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, "SELECT id, name, jurisdiction FROM employees WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var emp Employee
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Jurisdiction); err != nil {
			return nil, err
		}
		out[emp.ID] = emp
	}
	return out, rows.Err()
}
