// Package ratings stores reader reviews and the moderation queue.
//
// Reviews start out pending. Only approved reviews count towards a book's
// average rating and review count; a pending review is visible to its author
// and to moderators.
package ratings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/entities"
)

// DefaultPageSize is how many reviews a book page shows at once.
const DefaultPageSize = 5

const maxCommentLength = 1000

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrReviewNotFound  = errors.New("review not found")
	ErrAlreadyReviewed = errors.New("user has already reviewed this book")
	ErrAlreadyApproved = errors.New("review is already approved")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrCommentTooLong  = errors.New("comment must be at most 1000 characters")
)

type ReviewInput struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// Validate checks the rating range and comment length.
func (in ReviewInput) Validate() error {
	if in.Rating < 1 || in.Rating > 5 {
		return ErrInvalidRating
	}
	if len([]rune(in.Comment)) > maxCommentLength {
		return ErrCommentTooLong
	}
	return nil
}

// ReviewView is a review as listed under a book.
type ReviewView struct {
	ID         uint      `json:"id"`
	Username   string    `json:"username"`
	Picture    string    `json:"picture"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	IsApproved bool      `json:"is_approved"`
	IsAuthor   bool      `json:"is_author"`
}

// PendingReview is a review waiting in the moderation queue.
type PendingReview struct {
	ID        uint      `json:"id"`
	BookID    uint      `json:"book_id"`
	BookTitle string    `json:"book_title"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// AddReview records a pending review. Each user reviews a book at most once.
func (s *Service) AddReview(ctx context.Context, in ReviewInput, bookID, userID uint) (*entities.Review, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var review *entities.Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &entities.Book{}, bookID, ErrBookNotFound); err != nil {
			return err
		}
		if err := exists(tx, &entities.User{}, userID, ErrUserNotFound); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&entities.Review{}).Where("book_id = ? AND user_id = ?", bookID, userID).Count(&count).Error; err != nil {
			return fmt.Errorf("check existing review: %w", err)
		}
		if count > 0 {
			return ErrAlreadyReviewed
		}

		review = &entities.Review{
			UserID:    userID,
			BookID:    bookID,
			Rating:    in.Rating,
			Comment:   strings.TrimSpace(in.Comment),
			CreatedAt: s.now(),
		}
		if err := tx.Create(review).Error; err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// GetAverageRating returns the mean of the book's approved ratings, or 0
// when there are none.
func (s *Service) GetAverageRating(ctx context.Context, bookID uint) (float64, error) {
	db := s.db.WithContext(ctx)
	if err := exists(db, &entities.Book{}, bookID, ErrBookNotFound); err != nil {
		return 0, err
	}

	var avg sql.NullFloat64
	err := db.Model(&entities.Review{}).
		Select("AVG(rating)").
		Where("book_id = ? AND is_approved = ?", bookID, true).
		Row().Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average rating: %w", err)
	}
	return avg.Float64, nil
}

// GetReviews returns one page of a book's reviews, newest first. Reviews the
// viewer wrote are flagged so their pending ones can be shown to them.
func (s *Service) GetReviews(ctx context.Context, bookID uint, viewerID *uint, page, pageSize int) ([]ReviewView, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	var reviews []entities.Review
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("book_id = ?", bookID).
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	views := make([]ReviewView, 0, len(reviews))
	for _, r := range reviews {
		views = append(views, ReviewView{
			ID:         r.ID,
			Username:   usernameOrUnknown(r.User),
			Picture:    r.User.ProfilePicture,
			Rating:     r.Rating,
			Comment:    r.Comment,
			CreatedAt:  r.CreatedAt,
			IsApproved: r.IsApproved,
			IsAuthor:   viewerID != nil && r.UserID == *viewerID,
		})
	}
	return views, nil
}

// GetTotalReviewCount counts the book's approved reviews.
func (s *Service) GetTotalReviewCount(ctx context.Context, bookID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&entities.Review{}).
		Where("book_id = ? AND is_approved = ?", bookID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return count, nil
}

// HasReviewed reports whether the user already reviewed the book.
func (s *Service) HasReviewed(ctx context.Context, userID, bookID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&entities.Review{}).
		Where("book_id = ? AND user_id = ?", bookID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return count > 0, nil
}

// GetUnapprovedReviews lists the moderation queue, newest first.
func (s *Service) GetUnapprovedReviews(ctx context.Context) ([]PendingReview, error) {
	var reviews []entities.Review
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Book").
		Where("is_approved = ?", false).
		Order("created_at DESC").
		Order("id DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}

	pending := make([]PendingReview, 0, len(reviews))
	for _, r := range reviews {
		pending = append(pending, PendingReview{
			ID:        r.ID,
			BookID:    r.BookID,
			BookTitle: r.Book.Title,
			Username:  usernameOrUnknown(r.User),
			Rating:    r.Rating,
			Comment:   r.Comment,
			CreatedAt: r.CreatedAt,
		})
	}
	return pending, nil
}

// ApproveReview publishes a pending review.
func (s *Service) ApproveReview(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var review entities.Review
		if err := tx.First(&review, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReviewNotFound
			}
			return fmt.Errorf("load review: %w", err)
		}
		if review.IsApproved {
			return ErrAlreadyApproved
		}
		return tx.Model(&review).Update("is_approved", true).Error
	})
}

// DeleteReview removes a review whatever its state.
func (s *Service) DeleteReview(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&entities.Review{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete review: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func exists(db *gorm.DB, model any, id uint, notFound error) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}

func usernameOrUnknown(u entities.User) string {
	if u.Username == "" {
		return "Unknown"
	}
	return u.Username
}
