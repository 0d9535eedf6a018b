package bench

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Run groups the results of one benchmark invocation.
type Run struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Results   []StoredResult `gorm:"foreignKey:RunID"`
}

// StoredResult is the persisted form of Result.
type StoredResult struct {
	ID         uint `gorm:"primarykey"`
	RunID      uint `gorm:"index"`
	Engine     string
	Preset     string
	Input      string
	InputSize  int64
	OutputSize int64
	ElapsedMS  int64
	Success    bool
	Err        string
}

// Store keeps benchmark history in a sqlite file.
type Store struct {
	db *gorm.DB
}

// OpenStore opens or creates the history database and migrates its schema.
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open bench store: %w", err)
	}
	if err := db.AutoMigrate(&Run{}, &StoredResult{}); err != nil {
		return nil, fmt.Errorf("migrate bench store: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRun persists one run with all its results.
func (s *Store) SaveRun(results []Result) (uint, error) {
	run := Run{CreatedAt: time.Now()}
	for _, r := range results {
		run.Results = append(run.Results, StoredResult{
			Engine:     r.Engine,
			Preset:     r.Preset,
			Input:      r.Input,
			InputSize:  r.InputSize,
			OutputSize: r.OutputSize,
			ElapsedMS:  r.Elapsed.Milliseconds(),
			Success:    r.Success,
			Err:        r.Err,
		})
	}
	if err := s.db.Create(&run).Error; err != nil {
		return 0, fmt.Errorf("save run: %w", err)
	}
	return run.ID, nil
}

// Runs returns the most recent runs, newest first, results populated.
func (s *Store) Runs(limit int) ([]Run, error) {
	var runs []Run
	q := s.db.Preload("Results").Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	return runs, nil
}
