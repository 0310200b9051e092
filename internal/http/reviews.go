package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/ratings"
)

type ReviewsController struct {
	ratings  *ratings.Service
	auditLog *audit.Service
}

func NewReviewsController(ratingSvc *ratings.Service, auditLog *audit.Service) *ReviewsController {
	return &ReviewsController{ratings: ratingSvc, auditLog: auditLog}
}

// List returns one page of a book's reviews along with the approved count.
func (rc *ReviewsController) List(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page, pageSize, ok := parsePaging(c, ratings.DefaultPageSize)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	total, err := rc.ratings.GetTotalReviewCount(ctx, bookID)
	if err != nil {
		respondServiceError(c, err, "count reviews")
		return
	}
	reviews, err := rc.ratings.GetReviews(ctx, bookID, auth.ViewerID(c), page, pageSize)
	if err != nil {
		respondServiceError(c, err, "list reviews")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reviews":      reviews,
		"total":        total,
		"current_page": page,
		"page_size":    pageSize,
	})
}

// Add records the signed-in user's review. It stays hidden from other
// readers until a moderator approves it.
func (rc *ReviewsController) Add(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var in ratings.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBadRequest(c, "rating is required")
		return
	}
	review, err := rc.ratings.AddReview(c.Request.Context(), in, bookID, auth.GetUserID(c))
	if err != nil {
		respondServiceError(c, err, "add review")
		return
	}
	respondCreated(c, review)
}

// Pending lists reviews waiting for moderation, newest first.
func (rc *ReviewsController) Pending(c *gin.Context) {
	pending, err := rc.ratings.GetUnapprovedReviews(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "pending reviews")
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": pending, "count": len(pending)})
}

func (rc *ReviewsController) Approve(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := rc.ratings.ApproveReview(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "approve review")
		return
	}
	recordAction(c, rc.auditLog, entities.AuditEventModeration, "review_approve", "review", id, "Approved review")
	respondSuccess(c, "review approved")
}

func (rc *ReviewsController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := rc.ratings.DeleteReview(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "delete review")
		return
	}
	recordAction(c, rc.auditLog, entities.AuditEventModeration, "review_delete", "review", id, "Deleted review")
	respondSuccess(c, "review deleted")
}
