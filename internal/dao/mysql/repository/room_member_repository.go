package repository

import (
	"context"

	"roomchat_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type roomMemberRepository struct {
	db *gorm.DB
}

// NewRoomMemberRepository 创建成员关系 Repository
func NewRoomMemberRepository(db *gorm.DB) RoomMemberRepository {
	return &roomMemberRepository{db: db}
}

func (r *roomMemberRepository) Create(ctx context.Context, member *model.RoomMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return wrapDBErrorf(err, "添加成员 room=%s user=%s", member.RoomID, member.UserID)
	}
	return nil
}

func (r *roomMemberRepository) CreateIfAbsent(ctx context.Context, member *model.RoomMember) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(member)
	if res.Error != nil {
		return false, wrapDBErrorf(res.Error, "添加成员 room=%s user=%s", member.RoomID, member.UserID)
	}
	return res.RowsAffected > 0, nil
}

func (r *roomMemberRepository) Exists(ctx context.Context, userID, roomID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RoomMember{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).Count(&count).Error
	if err != nil {
		return false, wrapDBErrorf(err, "查询成员 room=%s user=%s", roomID, userID)
	}
	return count > 0, nil
}

func (r *roomMemberRepository) FindByUser(ctx context.Context, userID string) ([]model.RoomMember, error) {
	var members []model.RoomMember
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&members).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户所在房间 user=%s", userID)
	}
	return members, nil
}

func (r *roomMemberRepository) FindByRoom(ctx context.Context, roomID string) ([]model.RoomMember, error) {
	var members []model.RoomMember
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id ASC").Find(&members).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询房间成员 room=%s", roomID)
	}
	return members, nil
}
