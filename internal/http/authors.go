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

type AuthorsController struct {
	authors  *catalog.AuthorService
	auditLog *audit.Service
}

func NewAuthorsController(authors *catalog.AuthorService, auditLog *audit.Service) *AuthorsController {
	return &AuthorsController{authors: authors, auditLog: auditLog}
}

// List returns one page of authors. Query: search, sort, desc, page, page_size.
func (ac *AuthorsController) List(c *gin.Context) {
	var filter catalog.AuthorFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(c, "invalid filter")
		return
	}
	page, pageSize, ok := parsePaging(c, catalog.DefaultPageSize)
	if !ok {
		return
	}
	result, err := ac.authors.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		respondServiceError(c, err, "list authors")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ac *AuthorsController) Details(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	details, err := ac.authors.Details(c.Request.Context(), id, auth.ViewerID(c))
	if err != nil {
		respondServiceError(c, err, "author details")
		return
	}
	c.JSON(http.StatusOK, details)
}

func (ac *AuthorsController) Create(c *gin.Context) {
	var files formFiles
	defer files.Close()

	in, err := bindAuthorInput(c, &files)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	author, err := ac.authors.Create(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, err, "create author")
		return
	}
	respondCreated(c, author)
}

func (ac *AuthorsController) EditInfo(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	info, err := ac.authors.EditInfo(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "author edit info")
		return
	}
	c.JSON(http.StatusOK, info)
}

func (ac *AuthorsController) Edit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var files formFiles
	defer files.Close()

	in, err := bindAuthorInput(c, &files)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	author, err := ac.authors.Edit(c.Request.Context(), id, in)
	if err != nil {
		respondServiceError(c, err, "edit author")
		return
	}
	c.JSON(http.StatusOK, author)
}

func (ac *AuthorsController) DeleteInfo(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	info, err := ac.authors.DeleteInfo(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "author delete info")
		return
	}
	c.JSON(http.StatusOK, info)
}

// Delete removes the author together with all of their books.
func (ac *AuthorsController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := ac.authors.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "delete author")
		return
	}
	recordAction(c, ac.auditLog, entities.AuditEventCatalog, "author_delete", "author", id, fmt.Sprintf("Deleted author %d", id))
	respondSuccess(c, "author deleted")
}
