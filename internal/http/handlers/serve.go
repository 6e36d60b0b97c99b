package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/data/attachments"
)

// writeServed streams a stored blob with its headers and closes the body.
func writeServed(c *gin.Context, s *attachments.Served) {
	defer s.Body.Close()
	h := c.Writer.Header()
	if s.Info.ContentType != "" {
		h.Set("Content-Type", s.Info.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	if s.Info.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(s.Info.Size, 10))
	}
	if s.Disposition != "" {
		h.Set("Content-Disposition", s.Disposition)
	}
	if !s.Info.LastModified.IsZero() {
		h.Set("Last-Modified", s.Info.LastModified.UTC().Format(http.TimeFormat))
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, s.Body)
}

// thumbnailSize reads the optional width/height query of media endpoints.
func thumbnailSize(c *gin.Context) (int, int, error) {
	var out [2]int
	for i, field := range []string{"width", "height"} {
		raw := c.Query(field)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, 0, invalid(field, "A valid integer is required.")
		}
		out[i] = n
	}
	return out[0], out[1], nil
}

// openParts opens uploaded files; the returned closer releases all of them.
func openParts(headers []*multipart.FileHeader) ([]attachments.File, func(), error) {
	files := make([]attachments.File, 0, len(headers))
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, invalid("file", "The submitted file could not be read.")
		}
		opened = append(opened, f)
		files = append(files, attachments.File{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     f,
		})
	}
	return files, closeAll, nil
}
