package domain

// ActionCode identifies a notifiable domain event.
type ActionCode int

const (
	ActionTestAssigned   ActionCode = 1
	ActionTestUnassigned ActionCode = 2
	ActionCommentAdded   ActionCode = 3
	ActionResultAdded    ActionCode = 4
)

func (a ActionCode) String() string {
	switch a {
	case ActionTestAssigned:
		return "TEST_ASSIGNED"
	case ActionTestUnassigned:
		return "TEST_UNASSIGNED"
	case ActionCommentAdded:
		return "COMMENT_ADDED"
	case ActionResultAdded:
		return "RESULT_ADDED"
	}
	return "UNKNOWN"
}

// NotificationSetting carries the templates for one action code and its subscribers.
// Templates use {name} placeholders filled from the notify call.
type NotificationSetting struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ActionCode      ActionCode `gorm:"uniqueIndex;not null" json:"action_code"`
	VerboseName     string     `gorm:"size:255" json:"verbose_name"`
	Message         string     `gorm:"type:text;not null" json:"message"`
	PlaceholderText string     `gorm:"type:text" json:"placeholder_text"`
	PlaceholderLink string     `gorm:"type:text" json:"placeholder_link"`
	Subscribers     []User     `gorm:"many2many:notification_setting_subscribers;" json:"-"`
	Timestamps
}

func (NotificationSetting) TableName() string { return "notification_setting" }

type Notification struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RecipientID     uint       `gorm:"index;not null" json:"recipient"`
	ActorID         *uint      `json:"actor"`
	ActionCode      ActionCode `gorm:"not null" json:"action_code"`
	TargetType      Kind       `gorm:"size:32" json:"target_type"`
	TargetID        uint       `json:"target_id"`
	Verb            string     `gorm:"type:text" json:"message"`
	PlaceholderText string     `gorm:"type:text" json:"placeholder_text"`
	PlaceholderLink string     `gorm:"type:text" json:"placeholder_link"`
	Unread          bool       `gorm:"not null;default:true;index" json:"unread"`
	Timestamps
	SoftDelete
}

func (Notification) TableName() string { return "notification" }
