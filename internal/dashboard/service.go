// Package dashboard computes the administrator's overview of the library and
// the user management listing.
package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/database/users"
	"github.com/mrlokans/libmanage/internal/entities"
)

const (
	activeWindow     = 30 * 24 * time.Hour
	recentBooksLimit = 5
)

type RecentBook struct {
	Title      string    `json:"title"`
	AuthorName string    `json:"author_name"`
	DateAdded  time.Time `json:"date_added"`
}

// Summary is the admin dashboard. ReviewMonths and ReviewCounts are
// parallel slices in chronological order.
type Summary struct {
	PhysicalBooks          int64        `json:"physical_books"`
	DigitalBooks           int64        `json:"digital_books"`
	AudioBooks             int64        `json:"audio_books"`
	TotalBooks             int64        `json:"total_books"`
	TotalUsers             int64        `json:"total_users"`
	TotalAuthors           int64        `json:"total_authors"`
	TotalPublishers        int64        `json:"total_publishers"`
	ActiveUsersLast30Days  int64        `json:"active_users_last_30_days"`
	MostActiveUser         string       `json:"most_active_user,omitempty"`
	MostBorrowedBook       string       `json:"most_borrowed_book,omitempty"`
	RepeatBorrowersPercent float64      `json:"repeat_borrowers_percent"`
	RecentBooks            []RecentBook `json:"recent_books"`
	ReviewMonths           []string     `json:"review_months"`
	ReviewCounts           []int        `json:"review_counts"`
}

// ManagedUser is one row of the user management listing.
type ManagedUser struct {
	ID        uint              `json:"id"`
	Email     string            `json:"email"`
	FullName  string            `json:"full_name"`
	Role      entities.UserRole `json:"role"`
	IsDeleted bool              `json:"is_deleted"`
}

type UserPage struct {
	Users      []ManagedUser `json:"users"`
	TotalCount int64         `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

type Service struct {
	db    *gorm.DB
	users *users.Repository
	now   func() time.Time
}

func NewService(db *gorm.DB, userRepo *users.Repository) *Service {
	return &Service{
		db:    db,
		users: userRepo,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard gathers the library statistics.
func (s *Service) Dashboard(ctx context.Context) (*Summary, error) {
	db := s.db.WithContext(ctx)
	summary := &Summary{}

	if err := s.countBooks(db, summary); err != nil {
		return nil, err
	}

	counts := []struct {
		model any
		dest  *int64
		name  string
	}{
		{&entities.User{}, &summary.TotalUsers, "users"},
		{&entities.Author{}, &summary.TotalAuthors, "authors"},
		{&entities.Publisher{}, &summary.TotalPublishers, "publishers"},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", c.name, err)
		}
	}

	since := s.now().Add(-activeWindow)
	if err := db.Model(&entities.User{}).Where("last_login_at >= ?", since).Count(&summary.ActiveUsersLast30Days).Error; err != nil {
		return nil, fmt.Errorf("count active users: %w", err)
	}

	var err error
	if summary.MostActiveUser, err = s.mostActiveUser(db); err != nil {
		return nil, err
	}
	if summary.MostBorrowedBook, err = s.mostBorrowedBook(db); err != nil {
		return nil, err
	}
	if summary.RepeatBorrowersPercent, err = s.repeatBorrowersPercent(db); err != nil {
		return nil, err
	}
	if summary.RecentBooks, err = s.recentBooks(db); err != nil {
		return nil, err
	}
	if summary.ReviewMonths, summary.ReviewCounts, err = s.reviewMonths(db); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Service) countBooks(db *gorm.DB, summary *Summary) error {
	type row struct {
		Type  entities.BookType
		Count int64
	}
	var rows []row
	if err := db.Model(&entities.Book{}).Select("type, COUNT(*) AS count").Group("type").Scan(&rows).Error; err != nil {
		return fmt.Errorf("count books by type: %w", err)
	}
	for _, r := range rows {
		switch r.Type {
		case entities.BookTypePhysical:
			summary.PhysicalBooks = r.Count
		case entities.BookTypeDigital:
			summary.DigitalBooks = r.Count
		case entities.BookTypeAudio:
			summary.AudioBooks = r.Count
		}
		summary.TotalBooks += r.Count
	}
	return nil
}

// mostActiveUser names the user with the most borrows. Ties go to the
// lowest id.
func (s *Service) mostActiveUser(db *gorm.DB) (string, error) {
	var name string
	err := db.Model(&entities.Borrow{}).
		Select("users.username").
		Joins("JOIN users ON users.id = borrows.user_id").
		Group("borrows.user_id, users.username").
		Order("COUNT(*) DESC").
		Order("borrows.user_id ASC").
		Limit(1).
		Row().Scan(&name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("most active user: %w", err)
	}
	return name, nil
}

func (s *Service) mostBorrowedBook(db *gorm.DB) (string, error) {
	var title string
	err := db.Model(&entities.Borrow{}).
		Select("books.title").
		Joins("JOIN books ON books.id = borrows.book_id").
		Group("borrows.book_id, books.title").
		Order("COUNT(*) DESC").
		Order("borrows.book_id ASC").
		Limit(1).
		Row().Scan(&title)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("most borrowed book: %w", err)
	}
	return title, nil
}

// repeatBorrowersPercent is the share of borrowing users with more than one
// borrow, in percent.
func (s *Service) repeatBorrowersPercent(db *gorm.DB) (float64, error) {
	type row struct {
		UserID uint
		Count  int64
	}
	var rows []row
	if err := db.Model(&entities.Borrow{}).Select("user_id, COUNT(*) AS count").Group("user_id").Scan(&rows).Error; err != nil {
		return 0, fmt.Errorf("count borrows per user: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	repeat := 0
	for _, r := range rows {
		if r.Count > 1 {
			repeat++
		}
	}
	return float64(repeat) / float64(len(rows)) * 100, nil
}

func (s *Service) recentBooks(db *gorm.DB) ([]RecentBook, error) {
	var books []entities.Book
	err := db.Preload("Author").
		Order("upload_date DESC").
		Order("id DESC").
		Limit(recentBooksLimit).
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("recent books: %w", err)
	}
	recent := make([]RecentBook, 0, len(books))
	for _, b := range books {
		recent = append(recent, RecentBook{Title: b.Title, AuthorName: b.Author.FullName, DateAdded: b.UploadDate})
	}
	return recent, nil
}

// reviewMonths buckets reviews by calendar month in UTC.
func (s *Service) reviewMonths(db *gorm.DB) ([]string, []int, error) {
	var created []time.Time
	if err := db.Model(&entities.Review{}).Pluck("created_at", &created).Error; err != nil {
		return nil, nil, fmt.Errorf("load review dates: %w", err)
	}

	type month struct{ year, month int }
	counts := make(map[month]int)
	for _, c := range created {
		c = c.UTC()
		counts[month{c.Year(), int(c.Month())}]++
	}
	keys := make([]month, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	labels := make([]string, len(keys))
	values := make([]int, len(keys))
	for i, k := range keys {
		labels[i] = fmt.Sprintf("%02d/%d", k.month, k.year)
		values[i] = counts[k]
	}
	return labels, values, nil
}

// Users returns one page of active users for the management screen.
func (s *Service) Users(ctx context.Context, page, pageSize int) (*UserPage, error) {
	list, total, err := s.users.ListActive(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	rows := make([]ManagedUser, 0, len(list))
	for _, u := range list {
		rows = append(rows, ManagedUser{
			ID:        u.ID,
			Email:     u.Email,
			FullName:  u.Username,
			Role:      u.Role,
			IsDeleted: !u.IsActive,
		})
	}
	return &UserPage{Users: rows, TotalCount: total, Page: page, PageSize: pageSize}, nil
}
