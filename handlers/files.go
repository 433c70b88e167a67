package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// FileHandler serves finished archives
type FileHandler struct {
	sitesDir string
}

// NewFileHandler creates a file handler serving archives from sitesDir
func NewFileHandler(sitesDir string) *FileHandler {
	return &FileHandler{sitesDir: sitesDir}
}

// validateFilename checks for path traversal attempts and restricts the
// served artifacts to zip archives.
func validateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty filename not allowed")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("path traversal not allowed")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, string(os.PathSeparator)) {
		return fmt.Errorf("path separators not allowed")
	}
	if strings.ToLower(filepath.Ext(name)) != ".zip" {
		return fmt.Errorf("only .zip archives can be downloaded")
	}
	return nil
}

// DownloadFile streams an archive as a binary attachment
func (h *FileHandler) DownloadFile(c *gin.Context) {
	filename := c.Param("filename")

	if err := validateFilename(filename); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	fullPath := filepath.Join(h.sitesDir, filename)

	// Ensure the resolved path stays inside the sites directory.
	absSitesDir, err := filepath.Abs(h.sitesDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "server configuration error",
		})
		return
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil || !strings.HasPrefix(absPath, absSitesDir+string(os.PathSeparator)) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "path traversal not allowed",
		})
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "File not found",
		})
		return
	}

	c.Header("Content-Type", "application/zip")
	c.FileAttachment(fullPath, filename)
}
