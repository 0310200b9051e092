package http

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/catalog"
)

const dateLayout = "2006-01-02"

// formFiles keeps the opened uploads of one request so they can be closed
// once the service is done with them.
type formFiles []multipart.File

func (f formFiles) Close() {
	for _, file := range f {
		file.Close()
	}
}

func isJSONRequest(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), gin.MIMEJSON)
}

// openUpload returns nil when the form has no file under field.
func openUpload(c *gin.Context, field string, files *formFiles) (*catalog.Upload, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	*files = append(*files, file)
	return &catalog.Upload{Filename: header.Filename, Content: file}, nil
}

func formDate(c *gin.Context, field string) (*time.Time, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date in YYYY-MM-DD format", field)
	}
	t = t.UTC()
	return &t, nil
}

func formUint(c *gin.Context, field string) (uint, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", field)
	}
	return uint(v), nil
}

func formInt(c *gin.Context, field string) (*int, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", field)
	}
	return &v, nil
}

// bindBookInput reads a book form. JSON bodies carry no files.
func bindBookInput(c *gin.Context, files *formFiles) (catalog.BookInput, error) {
	var in catalog.BookInput
	if isJSONRequest(c) {
		if err := c.ShouldBindJSON(&in); err != nil {
			return in, fmt.Errorf("invalid request body")
		}
		return in, nil
	}

	var err error
	in.Title = c.PostForm("title")
	in.ISBN = c.PostForm("isbn")
	in.Edition = c.PostForm("edition")
	in.Language = c.PostForm("language")
	in.Genre = c.PostForm("genre")
	in.Type = c.PostForm("type")
	in.Description = c.PostForm("description")
	if in.ReleaseDate, err = formDate(c, "release_date"); err != nil {
		return in, err
	}
	if in.DurationSeconds, err = formInt(c, "duration_seconds"); err != nil {
		return in, err
	}
	if in.AuthorID, err = formUint(c, "author_id"); err != nil {
		return in, err
	}
	if in.PublisherID, err = formUint(c, "publisher_id"); err != nil {
		return in, err
	}
	if in.Cover, err = openUpload(c, "cover", files); err != nil {
		return in, err
	}
	if in.File, err = openUpload(c, "file", files); err != nil {
		return in, err
	}
	return in, nil
}

func bindAuthorInput(c *gin.Context, files *formFiles) (catalog.AuthorInput, error) {
	var in catalog.AuthorInput
	if isJSONRequest(c) {
		if err := c.ShouldBindJSON(&in); err != nil {
			return in, fmt.Errorf("invalid request body")
		}
		return in, nil
	}

	var err error
	in.FullName = c.PostForm("full_name")
	in.Biography = c.PostForm("biography")
	if in.DateOfBirth, err = formDate(c, "date_of_birth"); err != nil {
		return in, err
	}
	if in.DateOfDeath, err = formDate(c, "date_of_death"); err != nil {
		return in, err
	}
	in.Photo, err = openUpload(c, "photo", files)
	return in, err
}

func bindPublisherInput(c *gin.Context, files *formFiles) (catalog.PublisherInput, error) {
	var in catalog.PublisherInput
	if isJSONRequest(c) {
		if err := c.ShouldBindJSON(&in); err != nil {
			return in, fmt.Errorf("invalid request body")
		}
		return in, nil
	}

	var err error
	in.Name = c.PostForm("name")
	in.Description = c.PostForm("description")
	in.Country = c.PostForm("country")
	in.Website = c.PostForm("website")
	in.Logo, err = openUpload(c, "logo", files)
	return in, err
}

// limitBody caps request bodies at maxBytes.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
