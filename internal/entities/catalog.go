package entities

import (
	"fmt"
	"strings"
	"time"
)

type BookType string

const (
	BookTypePhysical BookType = "Physical"
	BookTypeDigital  BookType = "Digital"
	BookTypeAudio    BookType = "Audio"
)

// ParseBookType accepts the canonical names case-insensitively.
func ParseBookType(s string) (BookType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "physical":
		return BookTypePhysical, nil
	case "digital":
		return BookTypeDigital, nil
	case "audio":
		return BookTypeAudio, nil
	default:
		return "", fmt.Errorf("unknown book type %q", s)
	}
}

// IsPhysical reports whether availability is tracked per copy rather than per reader.
func (t BookType) IsPhysical() bool {
	return t == BookTypePhysical
}

// HasFile reports whether books of this type carry an uploaded file.
func (t BookType) HasFile() bool {
	return t == BookTypeDigital || t == BookTypeAudio
}

type Author struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	FullName    string     `gorm:"size:500;not null;index" json:"full_name"`
	Photo       string     `gorm:"size:1024;not null" json:"photo"`
	Biography   string     `gorm:"type:text" json:"biography,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	DateOfDeath *time.Time `json:"date_of_death,omitempty"`
	Books       []Book     `gorm:"foreignKey:AuthorID" json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Publisher struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:500;not null;index" json:"name"`
	LogoURL     string    `gorm:"size:1024;not null" json:"logo_url"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Country     string    `gorm:"size:300" json:"country,omitempty"`
	Website     string    `gorm:"size:1024" json:"website,omitempty"`
	Books       []Book    `gorm:"foreignKey:PublisherID" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Book struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null;index" json:"title"`
	ISBN        string     `gorm:"size:20;not null;uniqueIndex" json:"isbn"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Edition     string     `gorm:"size:50" json:"edition,omitempty"`
	Language    string     `gorm:"size:100;not null" json:"language"`
	Genre       string     `gorm:"size:100" json:"genre,omitempty"`
	Type        BookType   `gorm:"size:20;not null;index;default:Physical" json:"type"`
	// DurationSeconds is only kept for audio books.
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	Description     string    `gorm:"size:1000" json:"description,omitempty"`
	Cover           string    `gorm:"size:1024;not null" json:"cover"`
	FilePath        string    `gorm:"size:1024" json:"file_path,omitempty"`
	UploadDate      time.Time `gorm:"index" json:"upload_date"`
	AuthorID        uint      `gorm:"not null;index" json:"author_id"`
	Author          Author    `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	PublisherID     uint      `gorm:"not null;index" json:"publisher_id"`
	Publisher       Publisher `gorm:"foreignKey:PublisherID" json:"publisher,omitempty"`
	Borrows         []Borrow  `gorm:"foreignKey:BookID" json:"-"`
	Reviews         []Review  `gorm:"foreignKey:BookID" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
