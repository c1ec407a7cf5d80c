package respond

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusOK, payload)
}

// Created writes a 201 response for a newly stored resource.
func Created(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusCreated, payload)
}

// NoContent finishes a mutation that has nothing to report.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Attachment streams body as a download named fileName. The length is
// unknown up front, so the response is chunked.
func Attachment(c *gin.Context, fileName string, body io.Reader) {
	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", fileName),
		"Cache-Control":       "no-store",
	})
}
