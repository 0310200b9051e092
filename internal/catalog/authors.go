package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/storage"
)

const SortByName = "Name"

type AuthorService struct {
	db    *gorm.DB
	files storage.Storage
	books *BookService
}

func NewAuthorService(db *gorm.DB, files storage.Storage, books *BookService) *AuthorService {
	return &AuthorService{db: db, files: files, books: books}
}

// List returns one page of authors, ordered by name unless asked otherwise.
func (s *AuthorService) List(ctx context.Context, filter AuthorFilter, page, pageSize int) (*AuthorPage, error) {
	page, pageSize = normalizePaging(page, pageSize)
	db := s.db.WithContext(ctx)

	scope := func(query *gorm.DB) *gorm.DB {
		if term := strings.TrimSpace(filter.SearchTerm); term != "" {
			query = query.Where("LOWER(authors.full_name) LIKE ?"+likeEscape, likePattern(term))
		}
		return query
	}

	var total int64
	if err := db.Model(&entities.Author{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count authors: %w", err)
	}

	var rows []AuthorSummary
	err := db.Model(&entities.Author{}).
		Scopes(scope).
		Select("authors.id, authors.full_name AS name, authors.photo, " +
			"(SELECT COUNT(*) FROM books WHERE books.author_id = authors.id) AS books_count").
		Order("authors.full_name " + sortDirection(filter.SortDescending)).
		Order("authors.id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	if rows == nil {
		rows = []AuthorSummary{}
	}

	return &AuthorPage{
		Authors:     rows,
		CurrentPage: page,
		TotalPages:  totalPages(total, pageSize),
		TotalCount:  total,
		Filter:      filter,
	}, nil
}

// Details returns the author with their books as seen by the viewer.
func (s *AuthorService) Details(ctx context.Context, id uint, viewerID *uint) (*AuthorDetails, error) {
	author, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	books, err := s.books.ListByAuthor(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	return &AuthorDetails{
		ID:          author.ID,
		Name:        author.FullName,
		Photo:       author.Photo,
		Biography:   author.Biography,
		DateOfBirth: author.DateOfBirth,
		DateOfDeath: author.DateOfDeath,
		Books:       books,
	}, nil
}

// Create adds an author with a unique full name. Without a photo the
// placeholder portrait is used.
func (s *AuthorService) Create(ctx context.Context, in AuthorInput) (*entities.Author, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return nil, fmt.Errorf("%w: full name", ErrMissingField)
	}
	db := s.db.WithContext(ctx)
	if err := s.checkName(db, in.FullName, 0); err != nil {
		return nil, err
	}

	author := &entities.Author{
		FullName:    in.FullName,
		Photo:       storage.PlaceholderAuthor,
		Biography:   in.Biography,
		DateOfBirth: in.DateOfBirth,
		DateOfDeath: in.DateOfDeath,
	}
	if in.Photo != nil {
		photo, err := s.files.Upload(ctx, in.Photo.Content, in.Photo.Filename, storage.CategoryAuthorPhotos)
		if err != nil {
			return nil, fmt.Errorf("upload photo: %w", err)
		}
		author.Photo = photo
	}

	if err := db.Create(author).Error; err != nil {
		if in.Photo != nil {
			removeFiles(ctx, s.files, []string{author.Photo})
		}
		return nil, fmt.Errorf("create author: %w", err)
	}
	return author, nil
}

func (s *AuthorService) EditInfo(ctx context.Context, id uint) (*AuthorEditInfo, error) {
	author, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &AuthorEditInfo{
		ID:            author.ID,
		FullName:      author.FullName,
		Biography:     author.Biography,
		DateOfBirth:   author.DateOfBirth,
		DateOfDeath:   author.DateOfDeath,
		ExistingPhoto: author.Photo,
	}, nil
}

// Edit updates the author's text fields. Storage is only touched when a new
// photo is supplied: it is uploaded, and the old photo removed once the row
// is saved.
func (s *AuthorService) Edit(ctx context.Context, id uint, in AuthorInput) (*entities.Author, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return nil, fmt.Errorf("%w: full name", ErrMissingField)
	}
	db := s.db.WithContext(ctx)

	author, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkName(db, in.FullName, id); err != nil {
		return nil, err
	}

	author.FullName = in.FullName
	author.Biography = in.Biography
	author.DateOfBirth = in.DateOfBirth
	author.DateOfDeath = in.DateOfDeath

	var uploaded, replaced []string
	if in.Photo != nil {
		photo, err := s.files.Upload(ctx, in.Photo.Content, in.Photo.Filename, storage.CategoryAuthorPhotos)
		if err != nil {
			return nil, fmt.Errorf("upload photo: %w", err)
		}
		uploaded = []string{photo}
		replaced = []string{author.Photo}
		author.Photo = photo
	}

	if err := db.Save(author).Error; err != nil {
		removeFiles(ctx, s.files, uploaded)
		return nil, fmt.Errorf("update author: %w", err)
	}
	removeFiles(ctx, s.files, replaced)
	return author, nil
}

func (s *AuthorService) DeleteInfo(ctx context.Context, id uint) (*AuthorDeleteInfo, error) {
	db := s.db.WithContext(ctx)
	author, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&entities.Book{}).Where("author_id = ?", id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	return &AuthorDeleteInfo{ID: author.ID, Name: author.FullName, Photo: author.Photo, BooksCount: count}, nil
}

// Delete removes the author, every book they wrote and the author's photo.
// Nothing is kept in the database if any step fails.
func (s *AuthorService) Delete(ctx context.Context, id uint) error {
	var paths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		author, err := s.load(tx, id)
		if err != nil {
			return err
		}

		var books []entities.Book
		if err := tx.Where("author_id = ?", id).Find(&books).Error; err != nil {
			return fmt.Errorf("load books: %w", err)
		}
		for i := range books {
			bookFiles, err := s.books.deleteBook(tx, &books[i])
			if err != nil {
				return err
			}
			paths = append(paths, bookFiles...)
		}

		if err := tx.Delete(&entities.Author{}, id).Error; err != nil {
			return fmt.Errorf("delete author: %w", err)
		}
		photo, err := storedFiles(s.files, author.Photo)
		if err != nil {
			return fmt.Errorf("photo: %w", err)
		}
		paths = append(paths, photo...)
		return nil
	})
	if err != nil {
		return err
	}
	removeFiles(ctx, s.files, paths)
	return nil
}

func (s *AuthorService) load(db *gorm.DB, id uint) (*entities.Author, error) {
	var author entities.Author
	if err := db.First(&author, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthorNotFound
		}
		return nil, fmt.Errorf("load author: %w", err)
	}
	return &author, nil
}

func (s *AuthorService) checkName(db *gorm.DB, name string, exceptID uint) error {
	var count int64
	if err := db.Model(&entities.Author{}).Where("full_name = ? AND id <> ?", name, exceptID).Count(&count).Error; err != nil {
		return fmt.Errorf("check author name: %w", err)
	}
	if count > 0 {
		return ErrDuplicateAuthor
	}
	return nil
}
