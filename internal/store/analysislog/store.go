package analysislog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"kaivest/internal/analysis"
)

// Record is one persisted analysis verdict.
type Record struct {
	ID               uint   `gorm:"primaryKey"`
	SessionID        string `gorm:"index"`
	Ticker           string `gorm:"index"`
	Decision         string
	Confidence       float64
	ConsensusReached bool
	FinalStatement   string
	Votes            datatypes.JSON
	RawCard          datatypes.JSON
	CreatedAt        time.Time
}

func (Record) TableName() string { return "analysis_log" }

// Store keeps terminal decisions in SQLite so the dashboard can show a
// user's analysis history across sessions.
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("analysis log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// SaveAnalysis implements the session persistence hook.
func (s *Store) SaveAnalysis(ctx context.Context, sessionID string, res analysis.DecisionResult) error {
	votes, err := json.Marshal(res.PerAgentVotes)
	if err != nil {
		return fmt.Errorf("encode votes: %w", err)
	}
	rec := Record{
		SessionID:        sessionID,
		Ticker:           res.Ticker,
		Decision:         res.Decision,
		Confidence:       res.Confidence,
		ConsensusReached: res.ConsensusReached,
		FinalStatement:   res.FinalStatement,
		Votes:            datatypes.JSON(votes),
		RawCard:          datatypes.JSON(res.RawCard),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// Recent returns the latest records, optionally filtered by ticker.
func (s *Store) Recent(ctx context.Context, ticker string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if ticker = strings.TrimSpace(ticker); ticker != "" {
		q = q.Where("ticker = ?", ticker)
	}
	var out []Record
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
