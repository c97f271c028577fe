package server

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic answers unmatched requests. API and websocket paths get a JSON
// 404; anything else is looked up in the static directory, falling back to
// its index.html so client side routes resolve.
func (s *Server) mountStatic() {
	root := s.staticRoot()
	s.engine.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if root == "" || strings.HasPrefix(p, "/api/") || p == "/ws" || c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		file := filepath.Join(root, filepath.FromSlash(path.Clean("/"+p)))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			c.File(file)
			return
		}
		c.File(filepath.Join(root, "index.html"))
	})
}

// staticRoot returns the configured directory when it holds an index.html.
func (s *Server) staticRoot() string {
	if s.staticDir == "" {
		return ""
	}
	index := filepath.Join(s.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		s.logger.Warn("static directory not served", slog.String("path", s.staticDir), slog.String("error", err.Error()))
		return ""
	}
	return s.staticDir
}
