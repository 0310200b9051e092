// Package borrowing tracks loans of physical copies and digital/audio licences.
//
// A physical book can be out with at most one reader at a time. Digital and
// audio books can be borrowed by any number of readers, but each reader holds
// at most one open loan per title. Overdue loans are closed lazily, whenever a
// reader's loans are looked at, through ExpireOverdue and its scoped variants.
package borrowing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/entities"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrBookNotFound    = errors.New("book not found")
	ErrBorrowNotFound  = errors.New("borrow not found")
	ErrAlreadyBorrowed = errors.New("book is already borrowed")
	ErrAlreadyReturned = errors.New("borrow is already returned")
	ErrNotBorrowOwner  = errors.New("borrow belongs to another user")
	ErrNoActiveBorrow  = errors.New("no active borrow for this book")
)

// BorrowedBook is one open loan as shown on the reader's shelf.
type BorrowedBook struct {
	BorrowID  uint              `json:"borrow_id"`
	BookID    uint              `json:"book_id"`
	Title     string            `json:"title"`
	Cover     string            `json:"cover"`
	DateTaken time.Time         `json:"date_taken"`
	DateDue   time.Time         `json:"date_due"`
	BookType  entities.BookType `json:"book_type"`
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

// RentBook opens a loan for the user. The availability check and the insert
// run in the same transaction.
func (s *Service) RentBook(ctx context.Context, userID, bookID uint) (*entities.Borrow, error) {
	var borrow *entities.Borrow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userExists(tx, userID); err != nil {
			return err
		}

		var book entities.Book
		if err := tx.Select("id", "type").First(&book, bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return fmt.Errorf("load book: %w", err)
		}

		open := tx.Model(&entities.Borrow{}).Where("book_id = ? AND returned = ?", bookID, false)
		if !book.Type.IsPhysical() {
			open = open.Where("user_id = ?", userID)
		}
		var count int64
		if err := open.Count(&count).Error; err != nil {
			return fmt.Errorf("check open borrows: %w", err)
		}
		if count > 0 {
			return ErrAlreadyBorrowed
		}

		now := s.now()
		borrow = &entities.Borrow{
			UserID:    userID,
			BookID:    bookID,
			DateTaken: now,
			DateDue:   now.Add(entities.LoanPeriod),
		}
		if err := tx.Create(borrow).Error; err != nil {
			return fmt.Errorf("create borrow: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return borrow, nil
}

// ReturnBook closes one of the user's own loans.
func (s *Service) ReturnBook(ctx context.Context, userID, borrowID uint) error {
	return s.returnBorrow(ctx, &userID, borrowID)
}

// ReturnAny closes a loan regardless of who holds it.
func (s *Service) ReturnAny(ctx context.Context, borrowID uint) error {
	return s.returnBorrow(ctx, nil, borrowID)
}

func (s *Service) returnBorrow(ctx context.Context, userID *uint, borrowID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if userID != nil {
			if err := userExists(tx, *userID); err != nil {
				return err
			}
		}

		var borrow entities.Borrow
		if err := tx.First(&borrow, borrowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowNotFound
			}
			return fmt.Errorf("load borrow: %w", err)
		}
		if userID != nil && borrow.UserID != *userID {
			return ErrNotBorrowOwner
		}
		if borrow.Returned {
			return ErrAlreadyReturned
		}

		now := s.now()
		return tx.Model(&borrow).Updates(map[string]any{
			"returned":      true,
			"date_returned": now,
		}).Error
	})
}

// GetUserBorrowedBooks closes the user's overdue loans and returns the ones
// still open, soonest due first.
func (s *Service) GetUserBorrowedBooks(ctx context.Context, userID uint) ([]BorrowedBook, error) {
	db := s.db.WithContext(ctx)
	if err := userExists(db, userID); err != nil {
		return nil, err
	}

	if _, err := expireOverdue(db.Where("user_id = ?", userID), s.now()); err != nil {
		return nil, err
	}

	var borrows []entities.Borrow
	err := db.Preload("Book").
		Where("user_id = ? AND returned = ?", userID, false).
		Order("date_due ASC").
		Find(&borrows).Error
	if err != nil {
		return nil, fmt.Errorf("list borrows: %w", err)
	}

	result := make([]BorrowedBook, 0, len(borrows))
	for _, b := range borrows {
		result = append(result, BorrowedBook{
			BorrowID:  b.ID,
			BookID:    b.BookID,
			Title:     b.Book.Title,
			Cover:     b.Book.Cover,
			DateTaken: b.DateTaken,
			DateDue:   b.DateDue,
			BookType:  b.Book.Type,
		})
	}
	return result, nil
}

// HasActiveBorrow reports whether the user holds an open loan on the book.
// Anonymous viewers never do.
func (s *Service) HasActiveBorrow(ctx context.Context, userID *uint, bookID uint) (bool, error) {
	if userID == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&entities.Borrow{}).
		Where("user_id = ? AND book_id = ? AND returned = ?", *userID, bookID, false).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check active borrow: %w", err)
	}
	return count > 0, nil
}

// CurrentBorrow closes an overdue loan on the book, if any, and returns the
// user's loan that is still open.
func (s *Service) CurrentBorrow(ctx context.Context, userID, bookID uint) (*entities.Borrow, error) {
	db := s.db.WithContext(ctx)
	if _, err := expireOverdue(db.Where("user_id = ? AND book_id = ?", userID, bookID), s.now()); err != nil {
		return nil, err
	}

	var borrow entities.Borrow
	err := db.Where("user_id = ? AND book_id = ? AND returned = ?", userID, bookID, false).
		Order("date_due DESC").
		First(&borrow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveBorrow
	}
	if err != nil {
		return nil, fmt.Errorf("load active borrow: %w", err)
	}
	return &borrow, nil
}

// ExpireOverdue closes every open loan whose due date is before now and
// returns how many were closed.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	return expireOverdue(s.db.WithContext(ctx), now)
}

func expireOverdue(scope *gorm.DB, now time.Time) (int64, error) {
	result := scope.Model(&entities.Borrow{}).
		Where("returned = ? AND date_due < ?", false, now).
		Updates(map[string]any{
			"returned":      true,
			"date_returned": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("expire overdue borrows: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func userExists(db *gorm.DB, userID uint) error {
	var count int64
	if err := db.Model(&entities.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
