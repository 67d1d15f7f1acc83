package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
)

const modelYAML = `models:
  - id: ict
    name: ICT continuation
    tier_a: 5
    tier_b: 3.5
    tier_c: 2
    rules:
      - {id: r1, name: HTF trend aligned, weight: 2, mandatory: true, phase: 1}
      - {id: r2, name: Liquidity sweep, weight: 1.5, phase: 2}
      - {id: r3, name: BOS confirmed, weight: 1, phase: 3}
      - {id: r4, name: FVG proximity, weight: 1, phase: 4}
      - {id: r5, name: Session window, weight: 0.5}
  - id: broken
    tier_a: 1
    tier_b: 2
    tier_c: 3
    rules:
      - {id: x, name: BOS confirmed, weight: 1, phase: 1}
`

func writeModels(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestFileModelStoreLoadSkipsInvalid(t *testing.T) {
	s, err := NewFileModelStore(writeModels(t, modelYAML), nil, nil)
	require.NoError(t, err)

	all, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	m := all[0]
	assert.Equal(t, "ict", m.ID)
	assert.True(t, m.Active)
	assert.Equal(t, "1h", m.Timeframe)
	assert.Equal(t, models.TrendNeutral, m.Bias)

	_, err = s.Get(context.Background(), "broken")
	assert.ErrorIs(t, err, domrepo.ErrModelNotFound)
}

func TestFileModelStoreMissingFile(t *testing.T) {
	s, err := NewFileModelStore(filepath.Join(t.TempDir(), "none.yaml"), nil, nil)
	require.NoError(t, err)
	all, _ := s.List(context.Background())
	assert.Empty(t, all)
}

func TestFileModelStoreSavePersists(t *testing.T) {
	path := writeModels(t, modelYAML)
	s, err := NewFileModelStore(path, nil, nil)
	require.NoError(t, err)

	m, err := s.Get(context.Background(), "ict")
	require.NoError(t, err)
	m.ID = "ict2"
	report, err := s.Save(context.Background(), m)
	require.NoError(t, err)
	assert.Len(t, report.Warnings, 1)

	reloaded, err := NewFileModelStore(path, nil, nil)
	require.NoError(t, err)
	all, _ := reloaded.List(context.Background())
	assert.Len(t, all, 2)
}

func TestFileModelStoreSaveRejects(t *testing.T) {
	path := writeModels(t, modelYAML)
	unresolvable := errors.New("unresolved")
	s, err := NewFileModelStore(path, nil, nil)
	require.NoError(t, err)
	s.check = func(m *models.Model) error {
		if m.ID == "bad" {
			return unresolvable
		}
		return nil
	}

	m, _ := s.Get(context.Background(), "ict")
	m.ID = "bad"
	_, err = s.Save(context.Background(), m)
	assert.ErrorIs(t, err, unresolvable)

	m.ID = "tiers"
	m.TierC = 0
	_, err = s.Save(context.Background(), m)
	assert.ErrorIs(t, err, models.ErrInvalidModel)

	all, _ := s.List(context.Background())
	assert.Len(t, all, 1)
}

func TestReadModelFileReportsEveryModel(t *testing.T) {
	verdicts, err := ReadModelFile(writeModels(t, modelYAML), nil)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)

	assert.Equal(t, "ict", verdicts[0].Model.ID)
	assert.NoError(t, verdicts[0].Err)
	assert.Len(t, verdicts[0].Report.Warnings, 1)

	assert.Equal(t, "broken", verdicts[1].Model.ID)
	assert.ErrorIs(t, verdicts[1].Err, models.ErrInvalidModel)

	_, err = ReadModelFile(filepath.Join(t.TempDir(), "none.yaml"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
