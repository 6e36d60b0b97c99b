package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type NotificationRepo struct{ Repo[domain.Notification] }

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) *NotificationRepo {
	return &NotificationRepo{newRepo[domain.Notification](db, baseLog, "notification", Spec{
		SearchFields: []string{"verb"},
		OrderFields:  map[string]string{"created_at": "created_at", "unread": "unread"},
		DefaultOrder: "created_at DESC, id DESC",
	})}
}

// RecipientScope filters notifications addressed to userID.
func RecipientScope(userID uint) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where("recipient_id = ?", userID) }
}

// UnreadCount counts live unread notifications of a user.
func (r *NotificationRepo) UnreadCount(dbc dbctx.Context, userID uint) (int64, error) {
	var n int64
	err := r.DB(dbc).Model(&domain.Notification{}).
		Where("recipient_id = ? AND unread = ? AND is_deleted = ?", userID, true, false).Count(&n).Error
	return n, err
}

// MarkAs sets unread on the given notifications of userID; all when ids is empty.
func (r *NotificationRepo) MarkAs(dbc dbctx.Context, userID uint, ids []uint, unread bool) (int64, error) {
	q := r.DB(dbc).Model(&domain.Notification{}).Where("recipient_id = ? AND is_deleted = ?", userID, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.UpdateColumn("unread", unread)
	return res.RowsAffected, res.Error
}

type NotificationSettingRepo struct{ Repo[domain.NotificationSetting] }

func NewNotificationSettingRepo(db *gorm.DB, baseLog *logger.Logger) *NotificationSettingRepo {
	return &NotificationSettingRepo{newRepo[domain.NotificationSetting](db, baseLog, "notification setting", Spec{
		OrderFields:  map[string]string{"action_code": "action_code"},
		DefaultOrder: "action_code ASC",
		Permanent:    true,
	})}
}

// ByCode returns the setting of an action code.
func (r *NotificationSettingRepo) ByCode(dbc dbctx.Context, code domain.ActionCode) (*domain.NotificationSetting, error) {
	var s domain.NotificationSetting
	res := r.DB(dbc).Where("action_code = ?", code).Limit(1).Find(&s)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apierr.NotFound("notification_setting.by_code", "notification setting", uint(code))
	}
	return &s, nil
}

// Subscribed returns which of userIDs subscribe to code.
func (r *NotificationSettingRepo) Subscribed(dbc dbctx.Context, code domain.ActionCode, userIDs []uint) (map[uint]bool, error) {
	out := map[uint]bool{}
	if len(userIDs) == 0 {
		return out, nil
	}
	var ids []uint
	err := r.DB(dbc).Table("notification_setting_subscribers AS s").
		Joins("JOIN notification_setting ns ON ns.id = s.notification_setting_id").
		Where("ns.action_code = ? AND s.user_id IN ?", code, userIDs).
		Pluck("s.user_id", &ids).Error
	for _, id := range ids {
		out[id] = true
	}
	return out, err
}

// SubscribedCodes returns the action codes userID subscribes to.
func (r *NotificationSettingRepo) SubscribedCodes(dbc dbctx.Context, userID uint) ([]domain.ActionCode, error) {
	var codes []domain.ActionCode
	err := r.DB(dbc).Table("notification_setting_subscribers AS s").
		Joins("JOIN notification_setting ns ON ns.id = s.notification_setting_id").
		Where("s.user_id = ?", userID).Order("ns.action_code ASC").
		Pluck("ns.action_code", &codes).Error
	return codes, err
}

// SetSubscribed adds or removes userID from the subscribers of codes.
func (r *NotificationSettingRepo) SetSubscribed(dbc dbctx.Context, userID uint, codes []domain.ActionCode, on bool) error {
	var settings []domain.NotificationSetting
	if err := r.DB(dbc).Where("action_code IN ?", codes).Find(&settings).Error; err != nil {
		return err
	}
	user := &domain.User{ID: userID}
	for i := range settings {
		assoc := r.DB(dbc).Model(&settings[i]).Association("Subscribers")
		var err error
		if on {
			err = assoc.Append(user)
		} else {
			err = assoc.Delete(user)
		}
		if err != nil {
			return apierr.MapDB("notification_setting.subscribe", err)
		}
	}
	return nil
}
