// Package reader serves EPUB chapters to readers who currently hold a loan
// on a digital book and remembers where each reader stopped.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/borrowing"
	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/storage"
)

const noContentHTML = "<p>No content available.</p>"

// ErrUnavailable is returned when the chapter cannot be shown: the book is
// missing, not digital, has no readable file, or the reader has no open
// loan on it.
var ErrUnavailable = errors.New("book is not available for reading")

// Chapter is one rendered chapter together with the book's contents.
type Chapter struct {
	BookID          uint     `json:"book_id"`
	Title           string   `json:"title"`
	ChapterIndex    int      `json:"chapter_index"`
	ChapterCount    int      `json:"chapter_count"`
	ChapterTitle    string   `json:"chapter_title"`
	HTMLContent     string   `json:"html_content"`
	TableOfContents []string `json:"table_of_contents"`
}

type Service struct {
	db      *gorm.DB
	files   storage.Storage
	borrows *borrowing.Service
	now     func() time.Time
}

func NewService(db *gorm.DB, files storage.Storage, borrows *borrowing.Service) *Service {
	return &Service{
		db:      db,
		files:   files,
		borrows: borrows,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// LoadChapter renders chapter chapterIndex of a digital book for the user.
// Without an index the reader resumes from saved progress, or the first
// chapter. Out-of-range indexes are clamped. The shown index is saved as the
// user's progress.
func (s *Service) LoadChapter(ctx context.Context, bookID, userID uint, chapterIndex *int) (*Chapter, error) {
	db := s.db.WithContext(ctx)

	var book entities.Book
	if err := db.First(&book, bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("load book: %w", err)
	}
	if book.Type != entities.BookTypeDigital || book.FilePath == "" {
		return nil, ErrUnavailable
	}

	if _, err := s.borrows.CurrentBorrow(ctx, userID, bookID); err != nil {
		if errors.Is(err, borrowing.ErrNoActiveBorrow) {
			return nil, ErrUnavailable
		}
		return nil, err
	}

	if !s.files.Exists(book.FilePath) {
		log.Printf("[READER] File for book %d is missing: %s", bookID, book.FilePath)
		return nil, ErrUnavailable
	}
	filePath, err := s.files.Resolve(book.FilePath)
	if err != nil {
		return nil, ErrUnavailable
	}

	epub, err := OpenEpub(filePath)
	if err != nil {
		log.Printf("[READER] Failed to open book %d: %v", bookID, err)
		return nil, ErrUnavailable
	}
	defer epub.Close()

	if len(epub.Spine) == 0 {
		return nil, ErrUnavailable
	}

	var progress entities.EpubProgress
	hasProgress := true
	if err := db.Where("user_id = ? AND book_id = ?", userID, bookID).First(&progress).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load progress: %w", err)
		}
		hasProgress = false
	}

	index := 0
	switch {
	case chapterIndex != nil:
		index = *chapterIndex
	case hasProgress:
		index = progress.LastChapterIndex
	}
	index = clamp(index, 0, len(epub.Spine)-1)

	chapterPath := epub.Spine[index]
	body, err := epub.ChapterBody(chapterPath)
	if err != nil {
		log.Printf("[READER] Failed to read chapter %d of book %d: %v", index, bookID, err)
	}
	if body == "" {
		body = noContentHTML
	}

	toc := make([]string, len(epub.Spine))
	for i, p := range epub.Spine {
		toc[i] = chapterTitle(epub, p, i)
	}

	if err := s.saveProgress(db, userID, bookID, index); err != nil {
		return nil, err
	}

	return &Chapter{
		BookID:          bookID,
		Title:           epub.Title,
		ChapterIndex:    index,
		ChapterCount:    len(epub.Spine),
		ChapterTitle:    toc[index],
		HTMLContent:     body,
		TableOfContents: toc,
	}, nil
}

func (s *Service) saveProgress(db *gorm.DB, userID, bookID uint, index int) error {
	var progress entities.EpubProgress
	err := db.Where("user_id = ? AND book_id = ?", userID, bookID).
		Assign(map[string]any{
			"last_chapter_index": index,
			"last_updated":       s.now(),
		}).
		FirstOrCreate(&progress, entities.EpubProgress{UserID: userID, BookID: bookID}).Error
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func chapterTitle(epub *Epub, p string, i int) string {
	if title, ok := epub.ChapterTitle(p); ok {
		return title
	}
	return fmt.Sprintf("Chapter %d", i+1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
