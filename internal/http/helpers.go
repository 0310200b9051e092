package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/borrowing"
	"github.com/mrlokans/libmanage/internal/catalog"
	"github.com/mrlokans/libmanage/internal/database/users"
	"github.com/mrlokans/libmanage/internal/ratings"
	"github.com/mrlokans/libmanage/internal/reader"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// --- Error Response Helpers ---

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found"})
}

// respondInternalError logs the error and hides it from the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// Service errors grouped by the status they are reported with.
var (
	notFoundErrors = []error{
		catalog.ErrBookNotFound,
		catalog.ErrAuthorNotFound,
		catalog.ErrPublisherNotFound,
		catalog.ErrNotAudioBook,
		borrowing.ErrBookNotFound,
		borrowing.ErrUserNotFound,
		borrowing.ErrBorrowNotFound,
		borrowing.ErrNoActiveBorrow,
		ratings.ErrBookNotFound,
		ratings.ErrUserNotFound,
		ratings.ErrReviewNotFound,
		users.ErrUserNotFound,
	}
	conflictErrors = []error{
		catalog.ErrDuplicateISBN,
		catalog.ErrDuplicateAuthor,
		catalog.ErrDuplicatePublisher,
		borrowing.ErrAlreadyBorrowed,
		borrowing.ErrAlreadyReturned,
		ratings.ErrAlreadyReviewed,
		ratings.ErrAlreadyApproved,
	}
	validationErrors = []error{
		catalog.ErrInvalidBookType,
		catalog.ErrMissingField,
		catalog.ErrUnsupportedFile,
		catalog.ErrDurationRequired,
		ratings.ErrInvalidRating,
		ratings.ErrCommentTooLong,
		users.ErrInvalidRole,
		users.ErrInvalidPageRange,
	}
	forbiddenErrors = []error{
		borrowing.ErrNotBorrowOwner,
		users.ErrAdminProtected,
		reader.ErrUnavailable,
	}
)

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusForError maps a service error to an HTTP status.
func statusForError(err error) int {
	switch {
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound
	case matchesAny(err, conflictErrors):
		return http.StatusConflict
	case matchesAny(err, validationErrors):
		return http.StatusBadRequest
	case matchesAny(err, forbiddenErrors):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError reports a service error with its mapped status. Errors
// without a mapping are logged and reported as 500.
func respondServiceError(c *gin.Context, err error, context string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		respondInternalError(c, err, context)
		return
	}
	respondError(c, status, err.Error())
}

// --- Parameter Parsing ---

// parseIDParam extracts an unsigned ID from the URL. On failure it responds
// with 400 and returns false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseIntQuery reads an optional positive integer query parameter.
// Missing values yield def; malformed ones respond with 400.
func parseIntQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		respondBadRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// parsePaging reads page and page_size.
func parsePaging(c *gin.Context, defaultPageSize int) (page, pageSize int, ok bool) {
	if page, ok = parseIntQuery(c, "page", 1); !ok {
		return 0, 0, false
	}
	if pageSize, ok = parseIntQuery(c, "page_size", defaultPageSize); !ok {
		return 0, 0, false
	}
	return page, pageSize, true
}
