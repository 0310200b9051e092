package entities

import "time"

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
	UserRoleUser    UserRole = "user"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleManager, UserRoleUser:
		return true
	}
	return false
}

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"uniqueIndex;size:100" json:"username"`
	Email            string     `gorm:"uniqueIndex;size:255" json:"email"`
	PasswordHash     string     `gorm:"size:255" json:"-"`
	Role             UserRole   `gorm:"size:20;not null;default:user" json:"role"`
	ProfilePicture   string     `gorm:"size:1024;not null" json:"profile_picture"`
	IsActive         bool       `gorm:"not null;default:true" json:"is_active"`
	LastLoginAt      *time.Time `gorm:"index" json:"last_login_at,omitempty"`
	FailedLoginCount int        `gorm:"not null;default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`
	Borrows          []Borrow   `gorm:"foreignKey:UserID" json:"-"`
	Reviews          []Review   `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
