package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/catalog"
	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/ratings"
)

type BooksController struct {
	books    *catalog.BookService
	ratings  *ratings.Service
	auditLog *audit.Service
}

func NewBooksController(books *catalog.BookService, ratingSvc *ratings.Service, auditLog *audit.Service) *BooksController {
	return &BooksController{books: books, ratings: ratingSvc, auditLog: auditLog}
}

// List returns one page of books. Query: search, min_rating, type, taken,
// sort, desc, page, page_size.
func (bc *BooksController) List(c *gin.Context) {
	var filter catalog.BookFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(c, "invalid filter")
		return
	}
	page, pageSize, ok := parsePaging(c, catalog.DefaultPageSize)
	if !ok {
		return
	}

	result, err := bc.books.List(c.Request.Context(), filter, auth.ViewerID(c), page, pageSize)
	if err != nil {
		respondServiceError(c, err, "list books")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Details returns a book with its availability for the viewer. The page
// query parameter selects which page of reviews is included.
func (bc *BooksController) Details(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page, ok := parseIntQuery(c, "page", 1)
	if !ok {
		return
	}

	viewer := auth.ViewerID(c)
	details, err := bc.books.Details(c.Request.Context(), id, viewer)
	if err != nil {
		respondServiceError(c, err, "book details")
		return
	}
	if page > 1 {
		details.Reviews, err = bc.ratings.GetReviews(c.Request.Context(), id, viewer, page, ratings.DefaultPageSize)
		if err != nil {
			respondServiceError(c, err, "book reviews")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"details":             details,
		"current_review_page": page,
	})
}

func (bc *BooksController) FormOptions(c *gin.Context) {
	opts, err := bc.books.FormOptions(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "book form options")
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (bc *BooksController) Create(c *gin.Context) {
	var files formFiles
	defer files.Close()

	in, err := bindBookInput(c, &files)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	book, err := bc.books.Create(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, err, "create book")
		return
	}
	respondCreated(c, book)
}

func (bc *BooksController) EditInfo(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	info, err := bc.books.EditInfo(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "book edit info")
		return
	}
	c.JSON(http.StatusOK, info)
}

func (bc *BooksController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var files formFiles
	defer files.Close()

	in, err := bindBookInput(c, &files)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	book, err := bc.books.Update(c.Request.Context(), id, in)
	if err != nil {
		respondServiceError(c, err, "update book")
		return
	}
	c.JSON(http.StatusOK, book)
}

func (bc *BooksController) DeleteInfo(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	info, err := bc.books.DeleteInfo(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "book delete info")
		return
	}
	c.JSON(http.StatusOK, info)
}

func (bc *BooksController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := bc.books.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "delete book")
		return
	}
	recordAction(c, bc.auditLog, entities.AuditEventCatalog, "book_delete", "book", id, fmt.Sprintf("Deleted book %d", id))
	respondSuccess(c, "book deleted")
}

// Listen returns the player data of an audio book.
func (bc *BooksController) Listen(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	player, err := bc.books.AudioPlayer(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "audio player")
		return
	}
	c.JSON(http.StatusOK, player)
}
