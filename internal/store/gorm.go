package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm（Postgres）实现 Store。
// 反应的切换通过对消息行加 FOR UPDATE 锁串行化，编辑与已读均为带条件的单条 UPDATE。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Append(ctx context.Context, msg *models.Message) (uint, error) {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	if msg.Reactions == nil {
		msg.Reactions = map[string]string{}
	}
	return msg.ID, nil
}

func (s *GormStore) Get(ctx context.Context, id uint) (*models.Message, error) {
	db := s.db.WithContext(ctx)
	var m models.Message
	if err := db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	reactions, err := loadReactions(db, []uint{id})
	if err != nil {
		return nil, err
	}
	m.Reactions = reactions[id]
	if m.Reactions == nil {
		m.Reactions = map[string]string{}
	}
	return &m, nil
}

func (s *GormStore) Update(ctx context.Context, id uint, p Patch) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if p.Text != nil {
			updates["text"] = *p.Text
		}
		if p.Edited {
			updates["edited"] = true
		}
		if p.ReadAt != nil {
			updates["read_at"] = *p.ReadAt
		}
		q := conditioned(tx.Model(&models.Message{}).Where("id = ?", id), p)
		if len(updates) == 0 {
			var n int64
			if err := q.Count(&n).Error; err != nil {
				return fmt.Errorf("check message: %w", err)
			}
			if n > 0 {
				return nil
			}
			return missingOrConflict(tx, id)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, id)
		}
		return nil
	})
}

func conditioned(q *gorm.DB, p Patch) *gorm.DB {
	if p.Author != "" {
		q = q.Where("username = ?", p.Author)
	}
	if p.NotAuthor != "" {
		q = q.Where("username <> ?", p.NotAuthor)
	}
	if p.OnlyUnread {
		q = q.Where("read_at IS NULL")
	}
	return q
}

// missingOrConflict 区分"记录不存在"与"条件不满足"。
func missingOrConflict(tx *gorm.DB, id uint) error {
	var n int64
	if err := tx.Model(&models.Message{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *GormStore) Delete(ctx context.Context, id uint, owner string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := conditioned(tx.Where("id = ?", id), Patch{Author: owner}).Delete(&models.Message{})
		if res.Error != nil {
			return fmt.Errorf("delete message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, id)
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.Reaction{}).Error; err != nil {
			return fmt.Errorf("delete reactions: %w", err)
		}
		return nil
	})
}

func (s *GormStore) ToggleReaction(ctx context.Context, id uint, username, symbol string) (map[string]string, error) {
	var out map[string]string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Message
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&m, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lock message: %w", err)
		}

		var cur models.Reaction
		err := tx.Where("message_id = ? AND username = ?", id, username).Take(&cur).Error
		switch {
		case err == nil && cur.Symbol == symbol:
			if err := tx.Where("message_id = ? AND username = ?", id, username).Delete(&models.Reaction{}).Error; err != nil {
				return fmt.Errorf("remove reaction: %w", err)
			}
		case err == nil || errors.Is(err, gorm.ErrRecordNotFound):
			r := models.Reaction{MessageID: id, Username: username, Symbol: symbol}
			upsert := clause.OnConflict{
				Columns:   []clause.Column{{Name: "message_id"}, {Name: "username"}},
				DoUpdates: clause.AssignmentColumns([]string{"symbol"}),
			}
			if err := tx.Clauses(upsert).Create(&r).Error; err != nil {
				return fmt.Errorf("set reaction: %w", err)
			}
		default:
			return fmt.Errorf("load reaction: %w", err)
		}

		all, err := loadReactions(tx, []uint{id})
		if err != nil {
			return err
		}
		out = all[id]
		if out == nil {
			out = map[string]string{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) MarkAllRead(ctx context.Context, room, reader string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("room = ? AND username <> ? AND read_at IS NULL", room, reader).
		Update("read_at", at)
	if res.Error != nil {
		return 0, fmt.Errorf("mark room read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) QueryHistory(ctx context.Context, f Filter, limit int) ([]models.Message, error) {
	db := s.db.WithContext(ctx)
	q := db.Where("(expires_at IS NULL OR expires_at > ?)", f.now())
	if f.Room != "" {
		q = q.Where("room = ?", f.Room)
	}
	switch f.View {
	case ViewDurable:
		q = q.Where("expires_at IS NULL")
	case ViewEphemeral:
		q = q.Where("expires_at IS NOT NULL")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.Message
	if err := q.Order("id desc").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	reactions, err := loadReactions(db, ids)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Reactions = reactions[msgs[i].ID]
		if msgs[i].Reactions == nil {
			msgs[i].Reactions = map[string]string{}
		}
	}
	return msgs, nil
}

func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&models.Message{}).Select("id").Where("expires_at <= ?", now)
		if err := tx.Where("message_id IN (?)", expired).Delete(&models.Reaction{}).Error; err != nil {
			return fmt.Errorf("delete expired reactions: %w", err)
		}
		res := tx.Where("expires_at <= ?", now).Delete(&models.Message{})
		if res.Error != nil {
			return fmt.Errorf("delete expired messages: %w", res.Error)
		}
		n = res.RowsAffected
		return nil
	})
	return n, err
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// loadReactions 批量加载消息的反应映射。
func loadReactions(db *gorm.DB, ids []uint) (map[uint]map[string]string, error) {
	out := make(map[uint]map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Reaction
	if err := db.Where("message_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	for _, r := range rows {
		if out[r.MessageID] == nil {
			out[r.MessageID] = make(map[string]string)
		}
		out[r.MessageID][r.Username] = r.Symbol
	}
	return out, nil
}
