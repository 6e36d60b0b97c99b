package domain

type RoleType int

const (
	RoleSystem        RoleType = 0
	RoleCustom        RoleType = 1
	RoleSuperuserOnly RoleType = 2
)

type Permission struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Codename string `gorm:"size:100;uniqueIndex;not null" json:"codename"`
	Name     string `gorm:"size:255" json:"name"`
}

func (Permission) TableName() string { return "permission" }

type Role struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Type        RoleType     `gorm:"not null;default:1" json:"type"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	Timestamps
}

func (Role) TableName() string { return "role" }

// HasPermission reports whether the role grants codename.
func (r *Role) HasPermission(codename string) bool {
	for _, p := range r.Permissions {
		if p.Codename == codename {
			return true
		}
	}
	return false
}

type Membership struct {
	ID        uint  `gorm:"primaryKey" json:"id"`
	ProjectID uint  `gorm:"uniqueIndex:idx_membership_unique;not null" json:"project"`
	UserID    uint  `gorm:"uniqueIndex:idx_membership_unique;not null" json:"user"`
	RoleID    uint  `gorm:"uniqueIndex:idx_membership_unique;not null" json:"role"`
	Role      *Role `gorm:"foreignKey:RoleID" json:"-"`
	Timestamps
}

func (Membership) TableName() string { return "membership" }

// PermissionProjectRestricted marks users that only see projects they are members of.
const PermissionProjectRestricted = "project_restricted"
