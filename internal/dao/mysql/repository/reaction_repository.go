package repository

import (
	"context"

	"roomchat_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type reactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository 创建表情回应 Repository
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

func (r *reactionRepository) Find(ctx context.Context, messageID, userID string) (*model.Reaction, error) {
	var reaction model.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&reaction).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询回应 message=%s user=%s", messageID, userID)
	}
	return &reaction, nil
}

// FindForUpdate 只应对已存在的行使用，行不存在时 InnoDB 会退化成间隙锁
func (r *reactionRepository) FindForUpdate(ctx context.Context, messageID, userID string) (*model.Reaction, error) {
	var reaction model.Reaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&reaction).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询回应 message=%s user=%s", messageID, userID)
	}
	return &reaction, nil
}

// Upsert 依赖 (message_id, user_id) 唯一索引，已存在时覆盖表情
func (r *reactionRepository) Upsert(ctx context.Context, reaction *model.Reaction) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
	}).Create(reaction).Error
	return wrapDBErrorf(err, "写入回应 message=%s user=%s", reaction.MessageID, reaction.UserID)
}

func (r *reactionRepository) Delete(ctx context.Context, messageID, userID string) error {
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&model.Reaction{}).Error
	return wrapDBErrorf(err, "删除回应 message=%s user=%s", messageID, userID)
}

func (r *reactionRepository) FindByMessage(ctx context.Context, messageID string) ([]model.Reaction, error) {
	var reactions []model.Reaction
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&reactions).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询回应 message=%s", messageID)
	}
	return reactions, nil
}

func (r *reactionRepository) FindByMessages(ctx context.Context, messageIDs []string) ([]model.Reaction, error) {
	var reactions []model.Reaction
	if len(messageIDs) == 0 {
		return reactions, nil
	}
	if err := r.db.WithContext(ctx).Where("message_id IN ?", messageIDs).Find(&reactions).Error; err != nil {
		return nil, wrapDBError(err, "批量查询回应")
	}
	return reactions, nil
}
