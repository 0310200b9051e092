package entities

import "time"

// LoanPeriod is how long a borrow stays active before it is considered overdue.
const LoanPeriod = 14 * 24 * time.Hour

type Borrow struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index:idx_borrow_user_book" json:"user_id"`
	User         User       `gorm:"foreignKey:UserID" json:"-"`
	BookID       uint       `gorm:"not null;index:idx_borrow_user_book;index" json:"book_id"`
	Book         Book       `gorm:"foreignKey:BookID" json:"-"`
	DateTaken    time.Time  `gorm:"not null" json:"date_taken"`
	DateDue      time.Time  `gorm:"not null;index" json:"date_due"`
	Returned     bool       `gorm:"not null;default:false;index" json:"returned"`
	DateReturned *time.Time `json:"date_returned,omitempty"`
}

// IsOverdue reports whether an unreturned borrow has passed its due date.
func (b Borrow) IsOverdue(now time.Time) bool {
	return !b.Returned && b.DateDue.Before(now)
}

type Review struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_review_user_book" json:"user_id"`
	User       User      `gorm:"foreignKey:UserID" json:"-"`
	BookID     uint      `gorm:"not null;uniqueIndex:idx_review_user_book;index" json:"book_id"`
	Book       Book      `gorm:"foreignKey:BookID" json:"-"`
	Rating     int       `gorm:"not null" json:"rating"`
	Comment    string    `gorm:"size:1000" json:"comment,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	IsApproved bool      `gorm:"not null;default:false;index" json:"is_approved"`
}

type EpubProgress struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex:idx_progress_user_book" json:"user_id"`
	BookID           uint      `gorm:"not null;uniqueIndex:idx_progress_user_book" json:"book_id"`
	LastChapterIndex int       `gorm:"not null" json:"last_chapter_index"`
	LastUpdated      time.Time `gorm:"not null" json:"last_updated"`
}

func (EpubProgress) TableName() string {
	return "user_epub_progresses"
}
