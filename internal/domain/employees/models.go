package employees

import "errors"

var ErrEmployeeNotFound = errors.New("employee not found")

type Employee struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Jurisdiction string `json:"jurisdiction"`
}
