package attribution

import (
	"testing"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
)

func app(name string, ranAt *time.Time) models.AppExecution {
	return models.AppExecution{Name: name, RanAt: ranAt}
}

func at(minutes int) *time.Time {
	t := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
	return &t
}

func TestResolveResponsibleAppEmpty(t *testing.T) {
	assert.Nil(t, ResolveResponsibleApp(nil))
	assert.Nil(t, ResolveResponsibleApp([]models.AppExecution{}))
}

func TestResolveResponsibleApp(t *testing.T) {
	tests := []struct {
		name     string
		apps     []models.AppExecution
		expected string
	}{
		{
			name:     "single app",
			apps:     []models.AppExecution{app("Deed", at(0))},
			expected: "Deed",
		},
		{
			name:     "most recent wins",
			apps:     []models.AppExecution{app("Deed", at(0)), app("Mortgage", at(5)), app("Note", at(2))},
			expected: "Mortgage",
		},
		{
			name:     "equal timestamps keep first seen",
			apps:     []models.AppExecution{app("Deed", at(5)), app("Mortgage", at(5))},
			expected: "Deed",
		},
		{
			name:     "no timestamps keep first seen",
			apps:     []models.AppExecution{app("Deed", nil), app("Mortgage", nil), app("Note", nil)},
			expected: "Deed",
		},
		{
			name:     "missing timestamp loses to present one",
			apps:     []models.AppExecution{app("Deed", nil), app("Mortgage", at(-60))},
			expected: "Mortgage",
		},
		{
			name:     "duplicate names",
			apps:     []models.AppExecution{app("Deed", at(1)), app("Mortgage", at(0)), app("Deed", at(3))},
			expected: "Deed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveResponsibleApp(tt.apps)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, *got)
		})
	}
}

func TestResolveResponsibleAppIsDeterministicAndFromInput(t *testing.T) {
	apps := []models.AppExecution{
		app("Deed", at(3)), app("Mortgage", nil), app("Note", at(3)), app("Release", at(1)),
	}
	names := ectolinq.Map(apps, func(a models.AppExecution) string { return a.Name })

	first := ResolveResponsibleApp(apps)
	require.NotNil(t, first)
	assert.True(t, ectolinq.Contains(names, *first))

	for i := 0; i < 10; i++ {
		got := ResolveResponsibleApp(apps)
		require.NotNil(t, got)
		assert.Equal(t, *first, *got)
	}
	assert.Equal(t, "Deed", *first)
}

func TestResolveResponsibleAppDoesNotReorderInput(t *testing.T) {
	apps := []models.AppExecution{app("Note", at(1)), app("Deed", at(9))}
	ResolveResponsibleApp(apps)
	assert.Equal(t, "Note", apps[0].Name)
	assert.Equal(t, "Deed", apps[1].Name)
}
