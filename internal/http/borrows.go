package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/borrowing"
	"github.com/mrlokans/libmanage/internal/entities"
)

type BorrowsController struct {
	borrows *borrowing.Service
}

func NewBorrowsController(borrows *borrowing.Service) *BorrowsController {
	return &BorrowsController{borrows: borrows}
}

// Rent opens a loan on the book for the signed-in user.
func (bc *BorrowsController) Rent(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	borrow, err := bc.borrows.RentBook(c.Request.Context(), auth.GetUserID(c), bookID)
	if err != nil {
		respondServiceError(c, err, "rent book")
		return
	}
	respondCreated(c, borrow)
}

// List returns the user's open loans. Overdue loans are closed on the way.
func (bc *BorrowsController) List(c *gin.Context) {
	list, err := bc.borrows.GetUserBorrowedBooks(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondServiceError(c, err, "list borrows")
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrows": list, "count": len(list)})
}

// Return closes a loan. Readers can only return their own loans; admins can
// return any.
func (bc *BorrowsController) Return(c *gin.Context) {
	borrowID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var err error
	if auth.HasRole(c, entities.UserRoleAdmin) {
		err = bc.borrows.ReturnAny(c.Request.Context(), borrowID)
	} else {
		err = bc.borrows.ReturnBook(c.Request.Context(), auth.GetUserID(c), borrowID)
	}
	if err != nil {
		respondServiceError(c, err, "return book")
		return
	}
	respondSuccess(c, "book returned")
}
