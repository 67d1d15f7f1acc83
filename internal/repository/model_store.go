package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	applogger "SetupScan/pkg/logger"
)

// ModelCheck rejects models whose rules cannot be evaluated.
type ModelCheck func(m *models.Model) error

type modelFile struct {
	Models []models.Model `yaml:"models"`
}

// FileModelStore keeps model definitions in one YAML file.
type FileModelStore struct {
	mu     sync.RWMutex
	path   string
	models map[string]models.Model
	check  ModelCheck
	l      *applogger.Logger
}

// ModelVerdict is the validation outcome of one model read from a file.
type ModelVerdict struct {
	Model  models.Model
	Report models.ValidationReport
	Err    error
}

// ReadModelFile parses path and validates every model in it, in file order. A missing file
// returns an error wrapping os.ErrNotExist.
func ReadModelFile(path string, check ModelCheck) ([]ModelVerdict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	var f modelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse models %s: %w", path, err)
	}
	out := make([]ModelVerdict, 0, len(f.Models))
	for _, m := range f.Models {
		report, err := prepareModel(&m, check)
		out = append(out, ModelVerdict{Model: m, Report: report, Err: err})
	}
	return out, nil
}

// NewFileModelStore loads path. A missing file starts an empty store; models that fail
// validation are skipped and logged.
func NewFileModelStore(path string, check ModelCheck, l *applogger.Logger) (*FileModelStore, error) {
	if l == nil {
		l = applogger.NewNop()
	}
	s := &FileModelStore{path: path, models: make(map[string]models.Model), check: check, l: l}
	verdicts, err := ReadModelFile(path, check)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.Warn("model file not found, starting empty", applogger.String("path", path))
			return s, nil
		}
		return nil, err
	}
	for _, v := range verdicts {
		if v.Err != nil {
			l.Error("model rejected at load", applogger.String("model_id", v.Model.ID), applogger.Error(v.Err))
			continue
		}
		for _, w := range v.Report.Warnings {
			l.Warn("model review", applogger.String("model_id", v.Model.ID), applogger.String("warning", w))
		}
		s.models[v.Model.ID] = v.Model
	}
	l.Info("models loaded", applogger.String("path", path), applogger.Int("count", len(s.models)))
	return s, nil
}

func prepareModel(m *models.Model, check ModelCheck) (models.ValidationReport, error) {
	if err := m.ApplyDefaults(); err != nil {
		return models.ValidationReport{ModelID: m.ID}, err
	}
	report, err := m.Validate()
	if err != nil {
		return report, err
	}
	if check != nil {
		if err := check(m); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *FileModelStore) List(_ context.Context) ([]models.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Model, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileModelStore) Get(_ context.Context, id string) (models.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	if !ok {
		return models.Model{}, fmt.Errorf("%w: %s", domrepo.ErrModelNotFound, id)
	}
	return m, nil
}

// Save validates m, then rewrites the file atomically. A rejected model leaves the store unchanged.
func (s *FileModelStore) Save(_ context.Context, m models.Model) (models.ValidationReport, error) {
	report, err := prepareModel(&m, s.check)
	if err != nil {
		return report, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.models[m.ID]
	s.models[m.ID] = m
	if err := s.persist(); err != nil {
		if had {
			s.models[m.ID] = prev
		} else {
			delete(s.models, m.ID)
		}
		return report, err
	}
	return report, nil
}

func (s *FileModelStore) persist() error {
	f := modelFile{Models: make([]models.Model, 0, len(s.models))}
	for _, m := range s.models {
		f.Models = append(f.Models, m)
	}
	sort.Slice(f.Models, func(i, j int) bool { return f.Models[i].ID < f.Models[j].ID })
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode models: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".models-*.yaml")
	if err != nil {
		return fmt.Errorf("write models: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write models: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write models: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace models: %w", err)
	}
	return nil
}
