package routes

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"felicity/services"
)

// POST /uploads
func (d *deps) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, services.Invalid("file is required", services.Issue{Field: "file", Message: "is required"}))
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, services.Invalid("Could not read upload."))
		return
	}
	defer f.Close()

	out, err := d.svc.UploadFile(c.Request.Context(), principal(c), fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "File uploaded.", "file": out})
}

// GET /uploads/:id
func (d *deps) download(c *gin.Context) {
	rc, info, err := d.svc.OpenFile(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("inline", map[string]string{"filename": info.Name}),
		"Cache-Control":       "private, no-store",
	})
}
