// Package division contains the Division aggregate: an academic program that
// groups courses and students and carries its own access-control scope.
package division

import (
	"context"
	"strings"
)

// Division is an academic program/track. Name is its natural key.
type Division struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Hours        int    `json:"hours"`
	Private      bool   `json:"private"`
	Group        bool   `json:"group"`
	RegulationID int64  `json:"regulation_id"`

	// Optional links; nil when the department could not be resolved.
	Department1ID *int64 `json:"department_1_id"`
	Department2ID *int64 `json:"department_2_id"`
}

// Department owns divisions. Name is its natural key.
type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NormalizeName trims the natural key the way every lookup compares it.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// Repository defines storage operations for divisions and departments.
type Repository interface {
	// GetByID returns shared.ErrDivisionNotFound when absent.
	GetByID(ctx context.Context, id int64) (*Division, error)

	// GetByName returns shared.ErrDivisionNotFound when absent.
	GetByName(ctx context.Context, name string) (*Division, error)

	// GetDepartmentByName returns shared.ErrDepartmentNotFound when absent.
	GetDepartmentByName(ctx context.Context, name string) (*Department, error)

	// RegulationExists reports whether the regulation is stored.
	RegulationExists(ctx context.Context, id int64) (bool, error)

	// CreateMany inserts all divisions in one transaction and assigns their IDs.
	CreateMany(ctx context.Context, divisions []*Division) error
}

// Row is one line of a divisions sheet. Departments are referenced by name.
type Row struct {
	Name        string `json:"name"`
	Hours       int    `json:"hours"`
	Private     bool   `json:"private"`
	Group       bool   `json:"group"`
	Department1 string `json:"department_1"`
	Department2 string `json:"department_2"`
}
