package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/reader"
)

type ReaderController struct {
	reader *reader.Service
}

func NewReaderController(readerSvc *reader.Service) *ReaderController {
	return &ReaderController{reader: readerSvc}
}

// Read renders a chapter of a borrowed digital book. Without a chapter
// query parameter the reader resumes where the user left off.
func (rc *ReaderController) Read(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var chapter *int
	if raw := c.Query("chapter"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondBadRequest(c, "invalid chapter")
			return
		}
		chapter = &v
	}

	result, err := rc.reader.LoadChapter(c.Request.Context(), bookID, auth.GetUserID(c), chapter)
	if errors.Is(err, reader.ErrUnavailable) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: "Either the book is not available or your borrow has expired.",
			Code:  "not_available",
		})
		return
	}
	if err != nil {
		respondServiceError(c, err, "load chapter")
		return
	}
	c.JSON(http.StatusOK, result)
}
