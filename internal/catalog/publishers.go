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

const SortByBooksPublished = "Books Published"

const booksCountSQL = "(SELECT COUNT(*) FROM books WHERE books.publisher_id = publishers.id)"

type PublisherService struct {
	db    *gorm.DB
	files storage.Storage
	books *BookService
}

func NewPublisherService(db *gorm.DB, files storage.Storage, books *BookService) *PublisherService {
	return &PublisherService{db: db, files: files, books: books}
}

// List returns one page of publishers. The search term matches the
// publisher's name or the title of any book it published.
func (s *PublisherService) List(ctx context.Context, filter PublisherFilter, page, pageSize int) (*PublisherPage, error) {
	page, pageSize = normalizePaging(page, pageSize)
	db := s.db.WithContext(ctx)

	scope := func(query *gorm.DB) *gorm.DB {
		if term := strings.TrimSpace(filter.SearchTerm); term != "" {
			pattern := likePattern(term)
			query = query.Where(
				"(LOWER(publishers.name) LIKE ?"+likeEscape+" OR EXISTS (SELECT 1 FROM books WHERE books.publisher_id = publishers.id AND LOWER(books.title) LIKE ?"+likeEscape+"))",
				pattern, pattern,
			)
		}
		return query
	}

	var total int64
	if err := db.Model(&entities.Publisher{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count publishers: %w", err)
	}

	dir := sortDirection(filter.SortDescending)
	order := "publishers.name " + dir
	if filter.SortBy == SortByBooksPublished {
		order = booksCountSQL + " " + dir
	}

	var rows []PublisherSummary
	err := db.Model(&entities.Publisher{}).
		Scopes(scope).
		Select("publishers.id, publishers.name, publishers.logo_url AS logo, " + booksCountSQL + " AS books_count").
		Order(order).
		Order("publishers.id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list publishers: %w", err)
	}
	if rows == nil {
		rows = []PublisherSummary{}
	}

	return &PublisherPage{
		Publishers:  rows,
		CurrentPage: page,
		TotalPages:  totalPages(total, pageSize),
		TotalCount:  total,
		Filter:      filter,
	}, nil
}

// Details returns the publisher with its books as seen by the viewer.
func (s *PublisherService) Details(ctx context.Context, id uint, viewerID *uint) (*PublisherDetails, error) {
	publisher, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	books, err := s.books.ListByPublisher(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	return &PublisherDetails{
		ID:          publisher.ID,
		Name:        publisher.Name,
		Logo:        publisher.LogoURL,
		Description: publisher.Description,
		Country:     publisher.Country,
		Website:     publisher.Website,
		Books:       books,
	}, nil
}

// Create adds a publisher with a unique name. Without a logo the
// placeholder is used.
func (s *PublisherService) Create(ctx context.Context, in PublisherInput) (*entities.Publisher, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	db := s.db.WithContext(ctx)
	if err := s.checkName(db, in.Name, 0); err != nil {
		return nil, err
	}

	publisher := &entities.Publisher{
		Name:        in.Name,
		LogoURL:     storage.PlaceholderPublisher,
		Description: in.Description,
		Country:     in.Country,
		Website:     in.Website,
	}
	if in.Logo != nil {
		logo, err := s.files.Upload(ctx, in.Logo.Content, in.Logo.Filename, storage.CategoryPublisherLogos)
		if err != nil {
			return nil, fmt.Errorf("upload logo: %w", err)
		}
		publisher.LogoURL = logo
	}

	if err := db.Create(publisher).Error; err != nil {
		if in.Logo != nil {
			removeFiles(ctx, s.files, []string{publisher.LogoURL})
		}
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	return publisher, nil
}

func (s *PublisherService) EditInfo(ctx context.Context, id uint) (*PublisherEditInfo, error) {
	publisher, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &PublisherEditInfo{
		ID:           publisher.ID,
		Name:         publisher.Name,
		Description:  publisher.Description,
		Country:      publisher.Country,
		Website:      publisher.Website,
		ExistingLogo: publisher.LogoURL,
	}, nil
}

// Edit updates the publisher's text fields and, when a new logo is given,
// replaces the old logo after the row is saved.
func (s *PublisherService) Edit(ctx context.Context, id uint, in PublisherInput) (*entities.Publisher, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	db := s.db.WithContext(ctx)

	publisher, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkName(db, in.Name, id); err != nil {
		return nil, err
	}

	publisher.Name = in.Name
	publisher.Description = in.Description
	publisher.Country = in.Country
	publisher.Website = in.Website

	var uploaded, replaced []string
	if in.Logo != nil {
		logo, err := s.files.Upload(ctx, in.Logo.Content, in.Logo.Filename, storage.CategoryPublisherLogos)
		if err != nil {
			return nil, fmt.Errorf("upload logo: %w", err)
		}
		uploaded = []string{logo}
		replaced = []string{publisher.LogoURL}
		publisher.LogoURL = logo
	}

	if err := db.Save(publisher).Error; err != nil {
		removeFiles(ctx, s.files, uploaded)
		return nil, fmt.Errorf("update publisher: %w", err)
	}
	removeFiles(ctx, s.files, replaced)
	return publisher, nil
}

func (s *PublisherService) DeleteInfo(ctx context.Context, id uint) (*PublisherDeleteInfo, error) {
	db := s.db.WithContext(ctx)
	publisher, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&entities.Book{}).Where("publisher_id = ?", id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	return &PublisherDeleteInfo{ID: publisher.ID, Name: publisher.Name, Logo: publisher.LogoURL, BooksCount: count}, nil
}

// Delete removes the publisher, every book it published and its logo in
// one transaction.
func (s *PublisherService) Delete(ctx context.Context, id uint) error {
	var paths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		publisher, err := s.load(tx, id)
		if err != nil {
			return err
		}

		var books []entities.Book
		if err := tx.Where("publisher_id = ?", id).Find(&books).Error; err != nil {
			return fmt.Errorf("load books: %w", err)
		}
		for i := range books {
			bookFiles, err := s.books.deleteBook(tx, &books[i])
			if err != nil {
				return err
			}
			paths = append(paths, bookFiles...)
		}

		if err := tx.Delete(&entities.Publisher{}, id).Error; err != nil {
			return fmt.Errorf("delete publisher: %w", err)
		}
		logo, err := storedFiles(s.files, publisher.LogoURL)
		if err != nil {
			return fmt.Errorf("logo: %w", err)
		}
		paths = append(paths, logo...)
		return nil
	})
	if err != nil {
		return err
	}
	removeFiles(ctx, s.files, paths)
	return nil
}

func (s *PublisherService) load(db *gorm.DB, id uint) (*entities.Publisher, error) {
	var publisher entities.Publisher
	if err := db.First(&publisher, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPublisherNotFound
		}
		return nil, fmt.Errorf("load publisher: %w", err)
	}
	return &publisher, nil
}

func (s *PublisherService) checkName(db *gorm.DB, name string, exceptID uint) error {
	var count int64
	if err := db.Model(&entities.Publisher{}).Where("name = ? AND id <> ?", name, exceptID).Count(&count).Error; err != nil {
		return fmt.Errorf("check publisher name: %w", err)
	}
	if count > 0 {
		return ErrDuplicatePublisher
	}
	return nil
}
