package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

type conversationRow struct {
	SessionID   string    `gorm:"column:SessionId;primaryKey"`
	History     string    `gorm:"column:History"`
	CreatedAt   time.Time `gorm:"column:CreatedAt"`
	LastUpdated time.Time `gorm:"column:LastUpdated"`
}

func (conversationRow) TableName() string { return "Conversations" }

type conversationSourcesRow struct {
	ID        int64          `gorm:"column:Id;primaryKey;autoIncrement"`
	SessionID string         `gorm:"column:SessionId;index"`
	Sources   datatypes.JSON `gorm:"column:Sources"`
	CreatedAt time.Time      `gorm:"column:CreatedAt"`
}

func (conversationSourcesRow) TableName() string { return "ConversationSources" }

// SQLConversationStore persists sessions through GORM. Works against SQLite
// for single-node deployments and PostgreSQL when sessions must survive the
// host.
type SQLConversationStore struct {
	db     *gorm.DB
	name   string
	maxLen int
	locks  *sessionLocks
}

func NewSQLConversationStore(db *gorm.DB, name string, maxConversationLength int) (*SQLConversationStore, error) {
	if err := db.AutoMigrate(&conversationRow{}, &conversationSourcesRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate conversation tables: %w", err)
	}
	return &SQLConversationStore{
		db:     db,
		name:   name,
		maxLen: maxConversationLength,
		locks:  newSessionLocks(),
	}, nil
}

func (s *SQLConversationStore) load(ctx context.Context, sessionID string) (*conversationRow, error) {
	var row conversationRow
	err := s.db.WithContext(ctx).First(&row, "\"SessionId\" = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &row, nil
}

func (s *SQLConversationStore) upsert(ctx context.Context, row *conversationRow) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "SessionId"}},
		DoUpdates: clause.AssignmentColumns([]string{"History", "LastUpdated"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *SQLConversationStore) GetHistory(ctx context.Context, sessionID string) (string, error) {
	row, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return row.History, nil
}

func (s *SQLConversationStore) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	row, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if row == nil {
		row = &conversationRow{SessionID: sessionID, CreatedAt: now}
	}
	row.History = truncateHistory(appendTurn(row.History, userText, assistantText), s.maxLen)
	row.LastUpdated = now
	return s.upsert(ctx, row)
}

func (s *SQLConversationStore) SetHistory(ctx context.Context, sessionID, history string) error {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	row, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if row == nil {
		row = &conversationRow{SessionID: sessionID, CreatedAt: now}
	}
	row.History = truncateHistory(history, s.maxLen)
	row.LastUpdated = now
	return s.upsert(ctx, row)
}

func (s *SQLConversationStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.db.WithContext(ctx).Delete(&conversationRow{}, "\"SessionId\" = ?", sessionID).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&conversationSourcesRow{}, "\"SessionId\" = ?", sessionID).Error; err != nil {
		return fmt.Errorf("failed to delete session sources: %w", err)
	}
	s.locks.drop(sessionID)
	return nil
}

func (s *SQLConversationStore) ClearAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&conversationRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&conversationSourcesRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear session sources: %w", err)
	}
	return nil
}

func (s *SQLConversationStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&conversationRow{}).Where("\"SessionId\" = ?", sessionID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return count > 0, nil
}

func (s *SQLConversationStore) AllSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&conversationRow{}).Pluck("SessionId", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

func (s *SQLConversationStore) GetTimestamps(ctx context.Context, sessionID string) (time.Time, time.Time, error) {
	row, err := s.load(ctx, sessionID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if row == nil {
		return time.Time{}, time.Time{}, models.NewNotFoundError("session", sessionID)
	}
	return row.CreatedAt, row.LastUpdated, nil
}

func (s *SQLConversationStore) AppendSources(ctx context.Context, sessionID string, sources []models.Source) error {
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	row := conversationSourcesRow{
		SessionID: sessionID,
		Sources:   datatypes.JSON(encoded),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to store sources: %w", err)
	}
	return nil
}

func (s *SQLConversationStore) GetSources(ctx context.Context, sessionID string) ([][]models.Source, error) {
	var rows []conversationSourcesRow
	err := s.db.WithContext(ctx).Where("\"SessionId\" = ?", sessionID).Order("\"Id\" asc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	all := make([][]models.Source, 0, len(rows))
	for _, row := range rows {
		var sources []models.Source
		if err := json.Unmarshal(row.Sources, &sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
		all = append(all, sources)
	}
	return all, nil
}

func (s *SQLConversationStore) Name() string {
	return s.name
}

func (s *SQLConversationStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
