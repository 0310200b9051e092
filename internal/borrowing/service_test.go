package borrowing

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/database"
	"github.com/mrlokans/libmanage/internal/entities"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()
	dbPath := "./test_borrowing_" + t.Name() + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return db.DB, cleanup
}

type fixture struct {
	reader   entities.User
	other    entities.User
	physical entities.Book
	digital  entities.Book
}

func seed(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	f := fixture{
		reader: entities.User{Username: "reader", Email: "reader@example.com", ProfilePicture: "/p.png"},
		other:  entities.User{Username: "other", Email: "other@example.com", ProfilePicture: "/p.png"},
	}
	require.NoError(t, db.Create(&f.reader).Error)
	require.NoError(t, db.Create(&f.other).Error)

	author := entities.Author{FullName: "Jane Doe", Photo: "/a.png"}
	require.NoError(t, db.Create(&author).Error)
	publisher := entities.Publisher{Name: "Acme", LogoURL: "/l.png"}
	require.NoError(t, db.Create(&publisher).Error)

	f.physical = entities.Book{
		Title: "Paper", ISBN: "100", Language: "en", Type: entities.BookTypePhysical,
		Cover: "/c.png", UploadDate: time.Now().UTC(), AuthorID: author.ID, PublisherID: publisher.ID,
	}
	f.digital = entities.Book{
		Title: "X", ISBN: "111", Language: "en", Type: entities.BookTypeDigital,
		Cover: "/c.png", FilePath: "/uploads/files/digital/x.epub", UploadDate: time.Now().UTC(),
		AuthorID: author.ID, PublisherID: publisher.ID,
	}
	require.NoError(t, db.Create(&f.physical).Error)
	require.NoError(t, db.Create(&f.digital).Error)
	return f
}

func openBorrows(t *testing.T, db *gorm.DB, bookID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&entities.Borrow{}).Where("book_id = ? AND returned = ?", bookID, false).Count(&count).Error)
	return count
}

func TestRentBook_Physical(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	borrow, err := svc.RentBook(ctx, f.reader.ID, f.physical.ID)
	require.NoError(t, err)
	assert.False(t, borrow.Returned)
	assert.WithinDuration(t, borrow.DateTaken.Add(14*24*time.Hour), borrow.DateDue, time.Second)

	_, err = svc.RentBook(ctx, f.other.ID, f.physical.ID)
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)

	_, err = svc.RentBook(ctx, f.reader.ID, f.physical.ID)
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)

	assert.Equal(t, int64(1), openBorrows(t, db, f.physical.ID))
}

func TestRentBook_DigitalIsPerReader(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.RentBook(ctx, f.reader.ID, f.digital.ID)
	require.NoError(t, err)

	_, err = svc.RentBook(ctx, f.reader.ID, f.digital.ID)
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)

	_, err = svc.RentBook(ctx, f.other.ID, f.digital.ID)
	assert.NoError(t, err)

	assert.Equal(t, int64(2), openBorrows(t, db, f.digital.ID))
}

func TestRentBook_MissingEntities(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.RentBook(ctx, 9999, f.digital.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.RentBook(ctx, f.reader.ID, 9999)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestRentBook_ConcurrentPhysicalRentals(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, userID := range []uint{f.reader.ID, f.other.ID, f.reader.ID, f.other.ID} {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, _ = svc.RentBook(ctx, id, f.physical.ID)
		}(userID)
	}
	wg.Wait()

	assert.LessOrEqual(t, openBorrows(t, db, f.physical.ID), int64(1))
}

func TestReturnBook(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	borrow, err := svc.RentBook(ctx, f.reader.ID, f.physical.ID)
	require.NoError(t, err)

	t.Run("other user cannot return it", func(t *testing.T) {
		assert.ErrorIs(t, svc.ReturnBook(ctx, f.other.ID, borrow.ID), ErrNotBorrowOwner)
	})

	t.Run("missing user or borrow", func(t *testing.T) {
		assert.ErrorIs(t, svc.ReturnBook(ctx, 9999, borrow.ID), ErrUserNotFound)
		assert.ErrorIs(t, svc.ReturnBook(ctx, f.reader.ID, 9999), ErrBorrowNotFound)
	})

	t.Run("owner returns it", func(t *testing.T) {
		require.NoError(t, svc.ReturnBook(ctx, f.reader.ID, borrow.ID))

		var reloaded entities.Borrow
		require.NoError(t, db.First(&reloaded, borrow.ID).Error)
		assert.True(t, reloaded.Returned)
		require.NotNil(t, reloaded.DateReturned)

		assert.ErrorIs(t, svc.ReturnBook(ctx, f.reader.ID, borrow.ID), ErrAlreadyReturned)
	})

	t.Run("book can be rented again", func(t *testing.T) {
		_, err := svc.RentBook(ctx, f.other.ID, f.physical.ID)
		assert.NoError(t, err)
	})
}

func TestReturnAny(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	borrow, err := svc.RentBook(ctx, f.reader.ID, f.digital.ID)
	require.NoError(t, err)

	require.NoError(t, svc.ReturnAny(ctx, borrow.ID))
	assert.Equal(t, int64(0), openBorrows(t, db, f.digital.ID))
}

func TestGetUserBorrowedBooks_ExpiresOverdue(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-20 * 24 * time.Hour)
	overdue := entities.Borrow{
		UserID: f.reader.ID, BookID: f.physical.ID,
		DateTaken: past, DateDue: past.Add(entities.LoanPeriod),
	}
	require.NoError(t, db.Create(&overdue).Error)

	active, err := svc.RentBook(ctx, f.reader.ID, f.digital.ID)
	require.NoError(t, err)

	books, err := svc.GetUserBorrowedBooks(ctx, f.reader.ID)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, active.ID, books[0].BorrowID)
	assert.Equal(t, "X", books[0].Title)
	assert.Equal(t, entities.BookTypeDigital, books[0].BookType)

	var reloaded entities.Borrow
	require.NoError(t, db.First(&reloaded, overdue.ID).Error)
	assert.True(t, reloaded.Returned)
	require.NotNil(t, reloaded.DateReturned)
	assert.WithinDuration(t, time.Now(), *reloaded.DateReturned, time.Minute)

	_, err = svc.GetUserBorrowedBooks(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHasActiveBorrow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	has, err := svc.HasActiveBorrow(ctx, nil, f.digital.ID)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = svc.RentBook(ctx, f.reader.ID, f.digital.ID)
	require.NoError(t, err)

	has, err = svc.HasActiveBorrow(ctx, &f.reader.ID, f.digital.ID)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasActiveBorrow(ctx, &f.other.ID, f.digital.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCurrentBorrow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.CurrentBorrow(ctx, f.reader.ID, f.digital.ID)
	assert.ErrorIs(t, err, ErrNoActiveBorrow)

	borrow, err := svc.RentBook(ctx, f.reader.ID, f.digital.ID)
	require.NoError(t, err)

	current, err := svc.CurrentBorrow(ctx, f.reader.ID, f.digital.ID)
	require.NoError(t, err)
	assert.Equal(t, borrow.ID, current.ID)

	svc.now = func() time.Time { return time.Now().UTC().Add(15 * 24 * time.Hour) }
	_, err = svc.CurrentBorrow(ctx, f.reader.ID, f.digital.ID)
	assert.ErrorIs(t, err, ErrNoActiveBorrow)
	assert.Equal(t, int64(0), openBorrows(t, db, f.digital.ID))
}

func TestExpireOverdue(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := seed(t, db)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.RentBook(ctx, f.reader.ID, f.digital.ID)
	require.NoError(t, err)
	_, err = svc.RentBook(ctx, f.other.ID, f.physical.ID)
	require.NoError(t, err)

	n, err := svc.ExpireOverdue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = svc.ExpireOverdue(ctx, time.Now().UTC().Add(15*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
