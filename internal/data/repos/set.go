package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// Set bundles every repository over one database handle.
type Set struct {
	Project             *ProjectRepo
	Parameter           *ParameterRepo
	SystemMessage       *SystemMessageRepo
	Suite               *SuiteRepo
	Plan                *PlanRepo
	Case                *CaseRepo
	Step                *StepRepo
	Test                *TestRepo
	Result              *ResultRepo
	Status              *StatusRepo
	Label               *LabelRepo
	CustomAttribute     *CustomAttributeRepo
	Comment             *CommentRepo
	Attachment          *AttachmentRepo
	User                *UserRepo
	Token               *TokenRepo
	Role                *RoleRepo
	Membership          *MembershipRepo
	Permission          *PermissionRepo
	Notification        *NotificationRepo
	NotificationSetting *NotificationSettingRepo
	Task                *TaskRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) *Set {
	log.Info("Wiring repos...")
	return &Set{
		Project:             NewProjectRepo(db, log),
		Parameter:           NewParameterRepo(db, log),
		SystemMessage:       NewSystemMessageRepo(db, log),
		Suite:               NewSuiteRepo(db, log),
		Plan:                NewPlanRepo(db, log),
		Case:                NewCaseRepo(db, log),
		Step:                NewStepRepo(db, log),
		Test:                NewTestRepo(db, log),
		Result:              NewResultRepo(db, log),
		Status:              NewStatusRepo(db, log),
		Label:               NewLabelRepo(db, log),
		CustomAttribute:     NewCustomAttributeRepo(db, log),
		Comment:             NewCommentRepo(db, log),
		Attachment:          NewAttachmentRepo(db, log),
		User:                NewUserRepo(db, log),
		Token:               NewTokenRepo(db, log),
		Role:                NewRoleRepo(db, log),
		Membership:          NewMembershipRepo(db, log),
		Permission:          NewPermissionRepo(db, log),
		Notification:        NewNotificationRepo(db, log),
		NotificationSetting: NewNotificationSettingRepo(db, log),
		Task:                NewTaskRepo(db, log),
	}
}
