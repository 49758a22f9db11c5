package directory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorNameFallsBackToID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	d, err := repo.CreateDoctor(ctx, &Doctor{Name: "Dr. Meera Rao"})
	require.NoError(t, err)

	name, err := DoctorName(ctx, repo, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Meera Rao", name)

	unknown := uuid.New()
	name, err = DoctorName(ctx, repo, unknown)
	require.NoError(t, err)
	assert.Equal(t, unknown.String(), name)
}

func TestListDoctorsSortedByName(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for _, n := range []string{"Dr. Zed", "Dr. Abe", "Dr. Kim"} {
		_, err := repo.CreateDoctor(ctx, &Doctor{Name: n})
		require.NoError(t, err)
	}

	list, err := repo.ListDoctors(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Dr. Abe", list[0].Name)
	assert.Equal(t, "Dr. Zed", list[2].Name)

	_, err = repo.GetPatient(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
