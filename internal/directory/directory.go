// Package directory holds the doctors and patients the scheduling core
// refers to by id.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
)

type Doctor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialty,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	CreateDoctor(ctx context.Context, d *Doctor) (*Doctor, error)

	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) (*Patient, error)
}

// DoctorName resolves a display name, falling back to the id when the
// doctor is not in the directory.
func DoctorName(ctx context.Context, repo Repository, id uuid.UUID) (string, error) {
	d, err := repo.GetDoctor(ctx, id)
	if errors.Is(err, ErrDoctorNotFound) {
		return id.String(), nil
	}
	if err != nil {
		return "", err
	}
	return d.Name, nil
}
