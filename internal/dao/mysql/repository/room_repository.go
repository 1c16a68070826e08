package repository

import (
	"context"

	"roomchat_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository 创建房间 Repository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) FindByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询房间 id=%s", id)
	}
	return &room, nil
}

func (r *roomRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Room, error) {
	var rooms []model.Room
	if len(ids) == 0 {
		return rooms, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rooms).Error; err != nil {
		return nil, wrapDBError(err, "批量查询房间")
	}
	return rooms, nil
}

func (r *roomRepository) FindByDirectKey(ctx context.Context, key string) (*model.Room, error) {
	var room model.Room
	if err := r.db.WithContext(ctx).First(&room, "direct_key = ?", key).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询单聊 key=%s", key)
	}
	return &room, nil
}

func (r *roomRepository) Create(ctx context.Context, room *model.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return wrapDBErrorf(err, "创建房间 id=%s", room.ID)
	}
	return nil
}

func (r *roomRepository) CreateIfAbsent(ctx context.Context, room *model.Room) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(room)
	if result.Error != nil {
		return false, wrapDBErrorf(result.Error, "补建房间 id=%s", room.ID)
	}
	return result.RowsAffected > 0, nil
}
