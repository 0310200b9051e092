// Package catalog manages books, authors and publishers together with the
// files that belong to them (covers, photos, logos, ebook and audio files).
//
// # Availability
//
// Whether a book is "taken" depends on its type. A physical book is taken for
// everyone as soon as any reader holds an open loan on it. A digital or audio
// book is only taken for the viewer who holds an open loan, and never for an
// anonymous viewer.
//
// # Deletes
//
// Deleting an author or a publisher deletes each of its books first, then the
// photo or logo, inside one transaction. A failure at any step rolls the
// whole deletion back. Stored files are only checked inside the transaction
// and removed after it commits, so a rolled back delete keeps every file.
//
// Replacing a cover, photo, logo or book file uploads the new file first and
// removes the old one once the row is saved.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/borrowing"
	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/ratings"
	"github.com/mrlokans/libmanage/internal/storage"
)

const (
	SortByTitle  = "Title"
	SortByRating = "Rating"
)

const approvedAverageSQL = "(SELECT AVG(r.rating) FROM reviews r WHERE r.book_id = books.id AND r.is_approved = TRUE)"

type BookService struct {
	db      *gorm.DB
	files   storage.Storage
	borrows *borrowing.Service
	ratings *ratings.Service
	now     func() time.Time
}

func NewBookService(db *gorm.DB, files storage.Storage, borrows *borrowing.Service, ratingSvc *ratings.Service) *BookService {
	return &BookService{
		db:      db,
		files:   files,
		borrows: borrows,
		ratings: ratingSvc,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns one page of books matching the filter. viewerID may be nil
// for anonymous visitors.
func (s *BookService) List(ctx context.Context, filter BookFilter, viewerID *uint, page, pageSize int) (*BookPage, error) {
	page, pageSize = normalizePaging(page, pageSize)
	db := s.db.WithContext(ctx)
	scope := bookFilterScope(filter, viewerID)

	var total int64
	if err := db.Model(&entities.Book{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}

	query := db.Scopes(scope).Preload("Author")
	dir := sortDirection(filter.SortDescending)
	switch filter.SortBy {
	case SortByRating:
		query = query.Order("COALESCE(" + approvedAverageSQL + ", 0) " + dir)
	default:
		query = query.Order("books.title " + dir)
	}

	var books []entities.Book
	err := query.Order("books.id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	summaries, err := s.summarize(db, books, viewerID)
	if err != nil {
		return nil, err
	}

	return &BookPage{
		Books:       summaries,
		CurrentPage: page,
		TotalPages:  totalPages(total, pageSize),
		TotalCount:  total,
		Filter:      filter,
	}, nil
}

func bookFilterScope(filter BookFilter, viewerID *uint) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		query = query.Joins("JOIN authors ON authors.id = books.author_id")

		if term := strings.TrimSpace(filter.SearchTerm); term != "" {
			pattern := likePattern(term)
			query = query.Where("(LOWER(books.title) LIKE ?"+likeEscape+" OR LOWER(authors.full_name) LIKE ?"+likeEscape+")", pattern, pattern)
		}
		if filter.MinimumRating != nil {
			query = query.Where(approvedAverageSQL+" >= ?", *filter.MinimumRating)
		}
		if filter.BookType != "" {
			if bookType, err := entities.ParseBookType(filter.BookType); err == nil {
				query = query.Where("books.type = ?", bookType)
			}
		}
		if filter.IsTaken != nil {
			query = applyTakenFilter(query, *filter.IsTaken, viewerID)
		}
		return query
	}
}

// applyTakenFilter keeps books whose availability, as seen by the viewer,
// matches taken.
func applyTakenFilter(query *gorm.DB, taken bool, viewerID *uint) *gorm.DB {
	anyOpen := "EXISTS (SELECT 1 FROM borrows br WHERE br.book_id = books.id AND br.returned = ?)"
	physical := "books.type = ?"
	notPhysical := "books.type <> ?"
	neg := ""
	if !taken {
		neg = "NOT "
	}

	if viewerID == nil {
		if taken {
			return query.Where(physical+" AND "+anyOpen, entities.BookTypePhysical, false)
		}
		return query.Where("(("+physical+" AND NOT "+anyOpen+") OR "+notPhysical+")",
			entities.BookTypePhysical, false, entities.BookTypePhysical)
	}

	viewerOpen := "EXISTS (SELECT 1 FROM borrows bu WHERE bu.book_id = books.id AND bu.user_id = ? AND bu.returned = ?)"
	return query.Where(
		"(("+physical+" AND "+neg+anyOpen+") OR ("+notPhysical+" AND "+neg+viewerOpen+"))",
		entities.BookTypePhysical, false, entities.BookTypePhysical, *viewerID, false,
	)
}

// summarize builds listing rows, loading ratings and open loans for all
// books in two queries.
func (s *BookService) summarize(db *gorm.DB, books []entities.Book, viewerID *uint) ([]BookSummary, error) {
	result := make([]BookSummary, 0, len(books))
	if len(books) == 0 {
		return result, nil
	}

	ids := make([]uint, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}

	type avgRow struct {
		BookID uint
		Avg    float64
	}
	var avgs []avgRow
	err := db.Model(&entities.Review{}).
		Select("book_id, AVG(rating) AS avg").
		Where("book_id IN ? AND is_approved = ?", ids, true).
		Group("book_id").
		Scan(&avgs).Error
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	rating := make(map[uint]int, len(avgs))
	for _, a := range avgs {
		rating[a.BookID] = int(a.Avg)
	}

	type openRow struct {
		BookID uint
		UserID uint
	}
	var open []openRow
	err = db.Model(&entities.Borrow{}).
		Select("book_id, user_id").
		Where("book_id IN ? AND returned = ?", ids, false).
		Scan(&open).Error
	if err != nil {
		return nil, fmt.Errorf("load open borrows: %w", err)
	}
	anyOpen := make(map[uint]bool)
	viewerOpen := make(map[uint]bool)
	for _, o := range open {
		anyOpen[o.BookID] = true
		if viewerID != nil && o.UserID == *viewerID {
			viewerOpen[o.BookID] = true
		}
	}

	for _, b := range books {
		taken := viewerOpen[b.ID]
		if b.Type.IsPhysical() {
			taken = anyOpen[b.ID]
		}
		result = append(result, BookSummary{
			ID:         b.ID,
			Title:      b.Title,
			AuthorName: b.Author.FullName,
			BookType:   b.Type,
			Cover:      b.Cover,
			Rating:     rating[b.ID],
			IsTaken:    taken,
		})
	}
	return result, nil
}

// Details returns the book with its availability for the viewer, the
// approved rating and the first page of reviews.
func (s *BookService) Details(ctx context.Context, id uint, viewerID *uint) (*BookDetails, error) {
	db := s.db.WithContext(ctx)

	var book entities.Book
	if err := db.Preload("Author").Preload("Publisher").First(&book, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("load book: %w", err)
	}

	takenByUser, err := s.borrows.HasActiveBorrow(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	taken := takenByUser
	if book.Type.IsPhysical() {
		var open int64
		if err := db.Model(&entities.Borrow{}).Where("book_id = ? AND returned = ?", id, false).Count(&open).Error; err != nil {
			return nil, fmt.Errorf("check open borrows: %w", err)
		}
		taken = open > 0
	}

	canReview := false
	if viewerID != nil {
		reviewed, err := s.ratings.HasReviewed(ctx, *viewerID, id)
		if err != nil {
			return nil, err
		}
		canReview = !reviewed
	}

	avg, err := s.ratings.GetAverageRating(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.ratings.GetTotalReviewCount(ctx, id)
	if err != nil {
		return nil, err
	}
	reviews, err := s.ratings.GetReviews(ctx, id, viewerID, 1, ratings.DefaultPageSize)
	if err != nil {
		return nil, err
	}

	return &BookDetails{
		Book:          book,
		IsTaken:       taken,
		IsTakenByUser: takenByUser,
		CanReview:     canReview,
		AverageRating: avg,
		ReviewCount:   count,
		Reviews:       reviews,
	}, nil
}

// FormOptions lists the authors and publishers a book can be linked to.
func (s *BookService) FormOptions(ctx context.Context) (*FormOptions, error) {
	db := s.db.WithContext(ctx)
	opts := &FormOptions{}

	if err := db.Model(&entities.Author{}).Select("id, full_name AS name").Order("full_name ASC").Scan(&opts.Authors).Error; err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	if err := db.Model(&entities.Publisher{}).Select("id, name").Order("name ASC").Scan(&opts.Publishers).Error; err != nil {
		return nil, fmt.Errorf("list publishers: %w", err)
	}
	return opts, nil
}

// Create adds a book after checking the ISBN is free and the author and
// publisher exist. The cover defaults to the placeholder image.
func (s *BookService) Create(ctx context.Context, in BookInput) (*entities.Book, error) {
	bookType, err := in.validate()
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	if err := s.checkISBN(db, in.ISBN, 0); err != nil {
		return nil, err
	}
	if err := checkOwners(db, in.AuthorID, in.PublisherID); err != nil {
		return nil, err
	}

	book := &entities.Book{
		Title:       in.Title,
		ISBN:        in.ISBN,
		ReleaseDate: in.ReleaseDate,
		Edition:     in.Edition,
		Language:    in.Language,
		Genre:       in.Genre,
		Type:        bookType,
		Description: in.Description,
		Cover:       storage.PlaceholderCover,
		UploadDate:  s.now(),
		AuthorID:    in.AuthorID,
		PublisherID: in.PublisherID,
	}
	if bookType == entities.BookTypeAudio {
		book.DurationSeconds = in.DurationSeconds
	}

	var uploaded []string
	if in.Cover != nil {
		cover, err := s.files.Upload(ctx, in.Cover.Content, in.Cover.Filename, storage.CategoryCovers)
		if err != nil {
			return nil, fmt.Errorf("upload cover: %w", err)
		}
		book.Cover = cover
		uploaded = append(uploaded, cover)
	}
	if in.File != nil && bookType.HasFile() {
		filePath, err := s.files.Upload(ctx, in.File.Content, in.File.Filename, fileCategory(bookType))
		if err != nil {
			removeFiles(ctx, s.files, uploaded)
			return nil, fmt.Errorf("upload book file: %w", err)
		}
		book.FilePath = filePath
		uploaded = append(uploaded, filePath)
	}

	if err := db.Create(book).Error; err != nil {
		removeFiles(ctx, s.files, uploaded)
		return nil, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// EditInfo returns the current values for the edit form.
func (s *BookService) EditInfo(ctx context.Context, id uint) (*BookEditInfo, error) {
	book, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	opts, err := s.FormOptions(ctx)
	if err != nil {
		return nil, err
	}
	return &BookEditInfo{
		ID:              book.ID,
		Title:           book.Title,
		ISBN:            book.ISBN,
		ReleaseDate:     book.ReleaseDate,
		Edition:         book.Edition,
		Language:        book.Language,
		Genre:           book.Genre,
		Type:            string(book.Type),
		DurationSeconds: book.DurationSeconds,
		Description:     book.Description,
		AuthorID:        book.AuthorID,
		PublisherID:     book.PublisherID,
		ExistingCover:   book.Cover,
		ExistingFile:    book.FilePath,
		FormOptions:     *opts,
	}, nil
}

// Update rewrites the book's fields. A new cover or book file replaces the
// old one, which is removed after the row is saved.
func (s *BookService) Update(ctx context.Context, id uint, in BookInput) (*entities.Book, error) {
	bookType, err := in.validate()
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	book, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkISBN(db, in.ISBN, id); err != nil {
		return nil, err
	}
	if err := checkOwners(db, in.AuthorID, in.PublisherID); err != nil {
		return nil, err
	}

	book.Title = in.Title
	book.ISBN = in.ISBN
	book.ReleaseDate = in.ReleaseDate
	book.Edition = in.Edition
	book.Language = in.Language
	book.Genre = in.Genre
	book.Description = in.Description
	book.Type = bookType
	book.AuthorID = in.AuthorID
	book.PublisherID = in.PublisherID
	book.DurationSeconds = nil
	if bookType == entities.BookTypeAudio {
		book.DurationSeconds = in.DurationSeconds
	}

	var uploaded, replaced []string
	if in.Cover != nil {
		cover, err := s.files.Upload(ctx, in.Cover.Content, in.Cover.Filename, storage.CategoryCovers)
		if err != nil {
			return nil, fmt.Errorf("upload cover: %w", err)
		}
		uploaded = append(uploaded, cover)
		replaced = append(replaced, book.Cover)
		book.Cover = cover
	}

	switch {
	case bookType.HasFile() && in.File != nil:
		filePath, err := s.files.Upload(ctx, in.File.Content, in.File.Filename, fileCategory(bookType))
		if err != nil {
			removeFiles(ctx, s.files, uploaded)
			return nil, fmt.Errorf("upload book file: %w", err)
		}
		uploaded = append(uploaded, filePath)
		replaced = append(replaced, book.FilePath)
		book.FilePath = filePath
	case !bookType.HasFile() && book.FilePath != "":
		replaced = append(replaced, book.FilePath)
		book.FilePath = ""
	}

	if err := db.Omit("Author", "Publisher").Save(book).Error; err != nil {
		removeFiles(ctx, s.files, uploaded)
		return nil, fmt.Errorf("update book: %w", err)
	}
	removeFiles(ctx, s.files, replaced)
	return book, nil
}

// DeleteInfo returns what the delete confirmation shows.
func (s *BookService) DeleteInfo(ctx context.Context, id uint) (*BookDeleteInfo, error) {
	book, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &BookDeleteInfo{ID: book.ID, Title: book.Title, Cover: book.Cover}, nil
}

// Delete removes the book, its loans, reviews and reading progress, and its
// cover and book file.
func (s *BookService) Delete(ctx context.Context, id uint) error {
	var paths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.load(tx, id)
		if err != nil {
			return err
		}
		paths, err = s.deleteBook(tx, book)
		return err
	})
	if err != nil {
		return err
	}
	removeFiles(ctx, s.files, paths)
	return nil
}

// deleteBook runs inside the caller's transaction and returns the book's
// stored files. The caller removes them once the transaction commits.
func (s *BookService) deleteBook(tx *gorm.DB, book *entities.Book) ([]string, error) {
	for _, model := range []any{&entities.Borrow{}, &entities.Review{}, &entities.EpubProgress{}} {
		if err := tx.Where("book_id = ?", book.ID).Delete(model).Error; err != nil {
			return nil, fmt.Errorf("delete %T rows: %w", model, err)
		}
	}
	if err := tx.Delete(&entities.Book{}, book.ID).Error; err != nil {
		return nil, fmt.Errorf("delete book: %w", err)
	}

	paths, err := storedFiles(s.files, book.Cover, book.FilePath)
	if err != nil {
		return nil, fmt.Errorf("files of book %d: %w", book.ID, err)
	}
	return paths, nil
}

// ListByAuthor returns all books of the author, ordered by title.
func (s *BookService) ListByAuthor(ctx context.Context, authorID uint, viewerID *uint) ([]BookSummary, error) {
	db := s.db.WithContext(ctx)
	if err := exists(db, &entities.Author{}, authorID, ErrAuthorNotFound); err != nil {
		return nil, err
	}
	return s.listWhere(db, "author_id = ?", authorID, viewerID)
}

// ListByPublisher returns all books of the publisher, ordered by title.
func (s *BookService) ListByPublisher(ctx context.Context, publisherID uint, viewerID *uint) ([]BookSummary, error) {
	db := s.db.WithContext(ctx)
	if err := exists(db, &entities.Publisher{}, publisherID, ErrPublisherNotFound); err != nil {
		return nil, err
	}
	return s.listWhere(db, "publisher_id = ?", publisherID, viewerID)
}

func (s *BookService) listWhere(db *gorm.DB, cond string, id uint, viewerID *uint) ([]BookSummary, error) {
	var books []entities.Book
	if err := db.Preload("Author").Where(cond, id).Order("title ASC").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return s.summarize(db, books, viewerID)
}

// AudioPlayer returns the listening view of an audio book.
func (s *BookService) AudioPlayer(ctx context.Context, id uint) (*AudioPlayer, error) {
	var book entities.Book
	if err := s.db.WithContext(ctx).Preload("Author").First(&book, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("load book: %w", err)
	}
	if book.Type != entities.BookTypeAudio {
		return nil, ErrNotAudioBook
	}
	return &AudioPlayer{
		ID:              book.ID,
		Title:           book.Title,
		AuthorID:        book.AuthorID,
		AuthorName:      book.Author.FullName,
		Language:        book.Language,
		Cover:           book.Cover,
		Description:     book.Description,
		DurationSeconds: book.DurationSeconds,
		UploadDate:      book.UploadDate,
		FilePath:        book.FilePath,
	}, nil
}

func (s *BookService) load(db *gorm.DB, id uint) (*entities.Book, error) {
	var book entities.Book
	if err := db.First(&book, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("load book: %w", err)
	}
	return &book, nil
}

func (s *BookService) checkISBN(db *gorm.DB, isbn string, exceptID uint) error {
	var count int64
	if err := db.Model(&entities.Book{}).Where("isbn = ? AND id <> ?", isbn, exceptID).Count(&count).Error; err != nil {
		return fmt.Errorf("check isbn: %w", err)
	}
	if count > 0 {
		return ErrDuplicateISBN
	}
	return nil
}

// storedFiles returns the paths among candidates that refer to uploaded
// files, failing if any of them does not resolve to a location in storage.
// Empty paths and placeholders are skipped.
func storedFiles(files storage.Storage, candidates ...string) ([]string, error) {
	var paths []string
	for _, p := range candidates {
		if p == "" || storage.IsPlaceholder(p) {
			continue
		}
		if _, err := files.Resolve(p); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// removeFiles deletes paths from storage. Failures are logged: the rows that
// referenced the files are already gone or point elsewhere.
func removeFiles(ctx context.Context, files storage.Storage, paths []string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		if _, err := files.Delete(ctx, p); err != nil {
			log.Printf("[CATALOG] Failed to remove file %s: %v", p, err)
		}
	}
}

func checkOwners(db *gorm.DB, authorID, publisherID uint) error {
	if err := exists(db, &entities.Author{}, authorID, ErrAuthorNotFound); err != nil {
		return err
	}
	return exists(db, &entities.Publisher{}, publisherID, ErrPublisherNotFound)
}

func fileCategory(t entities.BookType) string {
	switch t {
	case entities.BookTypeDigital:
		return storage.CategoryDigitalFiles
	case entities.BookTypeAudio:
		return storage.CategoryAudioFiles
	default:
		return storage.CategoryDefault
	}
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
