// Package kb is the shared knowledge base: per-conversation slot facts,
// scored trip offers, the ACL event log, and exported metrics snapshots.
// It is a thin layer over GORM so the same code runs against PostgreSQL in
// deployment and SQLite in tests.
package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested fact does not exist.
var ErrNotFound = errors.New("kb: not found")

// Config selects the database backend.
type Config struct {
	Driver string `yaml:"driver" json:"driver"` // "postgres" or "sqlite"
	DSN    string `yaml:"dsn" json:"dsn"`
}

// DefaultConfig is an in-memory SQLite store, suitable for tests and demos.
func DefaultConfig() Config {
	return Config{Driver: "sqlite", DSN: ":memory:"}
}

// Fact is one slot assertion within a conversation. The value is stored as
// JSON so any payload value survives round trips.
type Fact struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"uniqueIndex:idx_conv_slot;size:128"`
	Slot           string `gorm:"uniqueIndex:idx_conv_slot;size:128"`
	Value          string
	Source         string `gorm:"size:64"`
	UpdatedAt      time.Time
}

// Offer is one scored trip proposal recorded for a conversation.
type Offer struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"index;size:128"`
	Provider       string `gorm:"size:128"`
	Payload        string
	Score          float64
	CreatedAt      time.Time
}

// Event is one row of the ACL traffic log.
type Event struct {
	ID             uint   `gorm:"primaryKey"`
	Key            string `gorm:"uniqueIndex;size:64"`
	ConversationID string `gorm:"index;size:128"`
	Direction      string `gorm:"size:8"` // "IN" or "OUT"
	Performative   string `gorm:"size:16"`
	PayloadType    string `gorm:"size:32"`
	Peer           string `gorm:"size:128"`
	CreatedAt      time.Time
}

// Store wraps the database handle.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured backend and migrates the schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("kb: unsupported driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("kb: open %s: %w", cfg.Driver, err)
	}
	if err := db.AutoMigrate(&Fact{}, &Offer{}, &Event{}); err != nil {
		return nil, fmt.Errorf("kb: migrate: %w", err)
	}
	logger.Info("knowledge base ready", zap.String("driver", cfg.Driver))
	return &Store{db: db, logger: logger}, nil
}

// PutFact upserts a slot value for a conversation.
func (s *Store) PutFact(ctx context.Context, conversationID, slot string, value any, source string) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kb: encode fact value: %w", err)
	}
	fact := Fact{
		ConversationID: conversationID,
		Slot:           slot,
		Value:          string(encoded),
		Source:         source,
		UpdatedAt:      time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "source", "updated_at"}),
	}).Create(&fact).Error
}

// GetFact returns the decoded value of one slot, or ErrNotFound.
func (s *Store) GetFact(ctx context.Context, conversationID, slot string) (any, error) {
	var fact Fact
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND slot = ?", conversationID, slot).
		First(&fact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal([]byte(fact.Value), &value); err != nil {
		return nil, fmt.Errorf("kb: decode fact value: %w", err)
	}
	return value, nil
}

// ListFacts returns all slot values of a conversation as a map.
func (s *Store) ListFacts(ctx context.Context, conversationID string) (map[string]any, error) {
	var facts []Fact
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("slot").
		Find(&facts).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(facts))
	for _, f := range facts {
		var value any
		if err := json.Unmarshal([]byte(f.Value), &value); err != nil {
			s.logger.Warn("skipping undecodable fact",
				zap.String("conversation_id", conversationID),
				zap.String("slot", f.Slot), zap.Error(err))
			continue
		}
		out[f.Slot] = value
	}
	return out, nil
}

// AddOffer records a scored proposal.
func (s *Store) AddOffer(ctx context.Context, conversationID, provider string, offer map[string]any, score float64) error {
	encoded, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("kb: encode offer: %w", err)
	}
	return s.db.WithContext(ctx).Create(&Offer{
		ConversationID: conversationID,
		Provider:       provider,
		Payload:        string(encoded),
		Score:          score,
		CreatedAt:      time.Now().UTC(),
	}).Error
}

// QueryOffers returns the offers of a conversation at or above minScore,
// best first.
func (s *Store) QueryOffers(ctx context.Context, conversationID string, minScore float64) ([]Offer, error) {
	var offers []Offer
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND score >= ?", conversationID, minScore).
		Order("score DESC").
		Find(&offers).Error
	return offers, err
}

// PutMetrics stores an exported counter snapshot as facts under the
// "metrics." slot prefix.
func (s *Store) PutMetrics(ctx context.Context, conversationID string, snapshot map[string]int64) error {
	for name, value := range snapshot {
		if err := s.PutFact(ctx, conversationID, "metrics."+name, value, "metrics"); err != nil {
			return err
		}
	}
	return nil
}
