package catalog

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/ratings"
)

// DefaultPageSize applies when a listing is requested without a page size.
const DefaultPageSize = 10

var (
	ErrBookNotFound       = errors.New("book not found")
	ErrAuthorNotFound     = errors.New("author not found")
	ErrPublisherNotFound  = errors.New("publisher not found")
	ErrDuplicateISBN      = errors.New("a book with this ISBN already exists")
	ErrDuplicateAuthor    = errors.New("an author with this name already exists")
	ErrDuplicatePublisher = errors.New("a publisher with this name already exists")
	ErrInvalidBookType    = errors.New("invalid book type")
	ErrMissingField       = errors.New("required field is missing")
	ErrUnsupportedFile    = errors.New("unsupported file type")
	ErrDurationRequired   = errors.New("audio books need a duration")
	ErrNotAudioBook       = errors.New("book is not an audio book")
)

// Upload is a file handed in with a create or edit form. A nil *Upload means
// no file was supplied.
type Upload struct {
	Filename string
	Content  io.Reader
}

func (u *Upload) ext() string {
	return strings.ToLower(filepath.Ext(u.Filename))
}

// Option is an id/name pair for pickers.
type Option struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type FormOptions struct {
	Authors    []Option `json:"authors"`
	Publishers []Option `json:"publishers"`
}

// BookFilter narrows and orders the book listing.
type BookFilter struct {
	SearchTerm     string   `form:"search" json:"search,omitempty"`
	MinimumRating  *float64 `form:"min_rating" json:"min_rating,omitempty"`
	BookType       string   `form:"type" json:"type,omitempty"`
	IsTaken        *bool    `form:"taken" json:"taken,omitempty"`
	SortBy         string   `form:"sort" json:"sort,omitempty"`
	SortDescending bool     `form:"desc" json:"desc,omitempty"`
}

// BookSummary is one row of a book listing. IsTaken is global for physical
// books and specific to the viewer for digital and audio books.
type BookSummary struct {
	ID         uint              `json:"id"`
	Title      string            `json:"title"`
	AuthorName string            `json:"author_name"`
	BookType   entities.BookType `json:"book_type"`
	Cover      string            `json:"cover"`
	Rating     int               `json:"rating"`
	IsTaken    bool              `json:"is_taken"`
}

type BookPage struct {
	Books       []BookSummary `json:"books"`
	CurrentPage int           `json:"current_page"`
	TotalPages  int           `json:"total_pages"`
	TotalCount  int64         `json:"total_count"`
	Filter      BookFilter    `json:"filter"`
}

type BookDetails struct {
	Book          entities.Book        `json:"book"`
	IsTaken       bool                 `json:"is_taken"`
	IsTakenByUser bool                 `json:"is_taken_by_user"`
	CanReview     bool                 `json:"can_review"`
	AverageRating float64              `json:"average_rating"`
	ReviewCount   int64                `json:"review_count"`
	Reviews       []ratings.ReviewView `json:"reviews"`
}

// BookInput carries the fields of the add and edit book forms.
type BookInput struct {
	Title           string     `json:"title"`
	ISBN            string     `json:"isbn"`
	ReleaseDate     *time.Time `json:"release_date,omitempty"`
	Edition         string     `json:"edition,omitempty"`
	Language        string     `json:"language"`
	Genre           string     `json:"genre,omitempty"`
	Type            string     `json:"type"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	Description     string     `json:"description,omitempty"`
	AuthorID        uint       `json:"author_id"`
	PublisherID     uint       `json:"publisher_id"`
	Cover           *Upload    `json:"-"`
	File            *Upload    `json:"-"`
}

// validate normalizes the input and returns the parsed book type.
func (in *BookInput) validate() (entities.BookType, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Language = strings.TrimSpace(in.Language)

	switch {
	case in.Title == "":
		return "", fmt.Errorf("%w: title", ErrMissingField)
	case in.ISBN == "":
		return "", fmt.Errorf("%w: isbn", ErrMissingField)
	case in.Language == "":
		return "", fmt.Errorf("%w: language", ErrMissingField)
	case in.AuthorID == 0:
		return "", fmt.Errorf("%w: author", ErrMissingField)
	case in.PublisherID == 0:
		return "", fmt.Errorf("%w: publisher", ErrMissingField)
	}

	bookType, err := entities.ParseBookType(in.Type)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidBookType, in.Type)
	}

	if bookType == entities.BookTypeAudio && (in.DurationSeconds == nil || *in.DurationSeconds <= 0) {
		return "", ErrDurationRequired
	}
	if in.File != nil {
		want := map[entities.BookType]string{
			entities.BookTypeDigital: ".epub",
			entities.BookTypeAudio:   ".mp3",
		}[bookType]
		if want != "" && in.File.ext() != want {
			return "", fmt.Errorf("%w: %s books need a %s file", ErrUnsupportedFile, bookType, want)
		}
	}
	return bookType, nil
}

type BookEditInfo struct {
	ID              uint       `json:"id"`
	Title           string     `json:"title"`
	ISBN            string     `json:"isbn"`
	ReleaseDate     *time.Time `json:"release_date,omitempty"`
	Edition         string     `json:"edition,omitempty"`
	Language        string     `json:"language"`
	Genre           string     `json:"genre,omitempty"`
	Type            string     `json:"type"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	Description     string     `json:"description,omitempty"`
	AuthorID        uint       `json:"author_id"`
	PublisherID     uint       `json:"publisher_id"`
	ExistingCover   string     `json:"existing_cover"`
	ExistingFile    string     `json:"existing_file,omitempty"`
	FormOptions
}

type BookDeleteInfo struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Cover string `json:"cover"`
}

// AudioPlayer is what the listening page needs.
type AudioPlayer struct {
	ID              uint      `json:"id"`
	Title           string    `json:"title"`
	AuthorID        uint      `json:"author_id"`
	AuthorName      string    `json:"author_name"`
	Language        string    `json:"language"`
	Cover           string    `json:"cover"`
	Description     string    `json:"description,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	UploadDate      time.Time `json:"upload_date"`
	FilePath        string    `json:"file_path"`
}

// AuthorFilter narrows and orders the author listing.
type AuthorFilter struct {
	SearchTerm     string `form:"search" json:"search,omitempty"`
	SortBy         string `form:"sort" json:"sort,omitempty"`
	SortDescending bool   `form:"desc" json:"desc,omitempty"`
}

type AuthorSummary struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Photo      string `json:"photo"`
	BooksCount int64  `json:"books_count"`
}

type AuthorPage struct {
	Authors     []AuthorSummary `json:"authors"`
	CurrentPage int             `json:"current_page"`
	TotalPages  int             `json:"total_pages"`
	TotalCount  int64           `json:"total_count"`
	Filter      AuthorFilter    `json:"filter"`
}

type AuthorDetails struct {
	ID          uint          `json:"id"`
	Name        string        `json:"name"`
	Photo       string        `json:"photo"`
	Biography   string        `json:"biography,omitempty"`
	DateOfBirth *time.Time    `json:"date_of_birth,omitempty"`
	DateOfDeath *time.Time    `json:"date_of_death,omitempty"`
	Books       []BookSummary `json:"books"`
}

type AuthorInput struct {
	FullName    string     `json:"full_name"`
	Biography   string     `json:"biography,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	DateOfDeath *time.Time `json:"date_of_death,omitempty"`
	Photo       *Upload    `json:"-"`
}

type AuthorEditInfo struct {
	ID            uint       `json:"id"`
	FullName      string     `json:"full_name"`
	Biography     string     `json:"biography,omitempty"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	DateOfDeath   *time.Time `json:"date_of_death,omitempty"`
	ExistingPhoto string     `json:"existing_photo"`
}

type AuthorDeleteInfo struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Photo      string `json:"photo"`
	BooksCount int64  `json:"books_count"`
}

// PublisherFilter narrows and orders the publisher listing.
type PublisherFilter struct {
	SearchTerm     string `form:"search" json:"search,omitempty"`
	SortBy         string `form:"sort" json:"sort,omitempty"`
	SortDescending bool   `form:"desc" json:"desc,omitempty"`
}

type PublisherSummary struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Logo       string `json:"logo"`
	BooksCount int64  `json:"books_count"`
}

type PublisherPage struct {
	Publishers  []PublisherSummary `json:"publishers"`
	CurrentPage int                `json:"current_page"`
	TotalPages  int                `json:"total_pages"`
	TotalCount  int64              `json:"total_count"`
	Filter      PublisherFilter    `json:"filter"`
}

type PublisherDetails struct {
	ID          uint          `json:"id"`
	Name        string        `json:"name"`
	Logo        string        `json:"logo"`
	Description string        `json:"description,omitempty"`
	Country     string        `json:"country,omitempty"`
	Website     string        `json:"website,omitempty"`
	Books       []BookSummary `json:"books"`
}

type PublisherInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Country     string  `json:"country,omitempty"`
	Website     string  `json:"website,omitempty"`
	Logo        *Upload `json:"-"`
}

type PublisherEditInfo struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Country      string `json:"country,omitempty"`
	Website      string `json:"website,omitempty"`
	ExistingLogo string `json:"existing_logo"`
}

type PublisherDeleteInfo struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Logo       string `json:"logo"`
	BooksCount int64  `json:"books_count"`
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

// likeEscape is the ESCAPE clause that goes with likePattern.
const likeEscape = ` ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns a search term into a case-insensitive substring match.
// Wildcards in the term match literally.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}

func sortDirection(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}
