package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/catalog"
	"github.com/mrlokans/libmanage/internal/entities"
)

type PublishersController struct {
	publishers *catalog.PublisherService
	auditLog *audit.Service
}

func NewPublishersController(publishers *catalog.PublisherService, auditLog *audit.Service) *PublishersController {
	return &PublishersController{publishers: publishers, auditLog: auditLog}
}

// List returns one page of publishers. Query: search, sort, desc, page, page_size.
func (pc *PublishersController) List(c *gin.Context) {
	var filter catalog.PublisherFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(c, "invalid filter")
		return
	}
	page, pageSize, ok := parsePaging(c, catalog.DefaultPageSize)
	if !ok {
		return
	}
	result, err := pc.publishers.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		respondServiceError(c, err, "list publishers")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (pc *PublishersController) Details(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	details, err := pc.publishers.Details(c.Request.Context(), id, auth.ViewerID(c))
	if err != nil {
		respondServiceError(c, err, "publisher details")
		return
	}
	c.JSON(http.StatusOK, details)
}

func (pc *PublishersController) Create(c *gin.Context) {
	var files formFiles
	defer files.Close()

	in, err := bindPublisherInput(c, &files)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	publisher, err := pc.publishers.Create(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, err, "create publisher")
		return
	}
	respondCreated(c, publisher)
}

func (pc *PublishersController) EditInfo(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	info, err := pc.publishers.EditInfo(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "publisher edit info")
		return
	}
	c.JSON(http.StatusOK, info)
}

func (pc *PublishersController) Edit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var files formFiles
	defer files.Close()

	in, err := bindPublisherInput(c, &files)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	publisher, err := pc.publishers.Edit(c.Request.Context(), id, in)
	if err != nil {
		respondServiceError(c, err, "edit publisher")
		return
	}
	c.JSON(http.StatusOK, publisher)
}

func (pc *PublishersController) DeleteInfo(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	info, err := pc.publishers.DeleteInfo(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "publisher delete info")
		return
	}
	c.JSON(http.StatusOK, info)
}

// Delete removes the publisher together with all of its books.
func (pc *PublishersController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := pc.publishers.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "delete publisher")
		return
	}
	recordAction(c, pc.auditLog, entities.AuditEventCatalog, "publisher_delete", "publisher", id, fmt.Sprintf("Deleted publisher %d", id))
	respondSuccess(c, "publisher deleted")
}
