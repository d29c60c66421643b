package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListPackages(c *gin.Context) {
	items, err := s.catalogSvc.ListPackages(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": items})
}

func (s *Server) GetPackage(c *gin.Context) {
	item, err := s.catalogSvc.GetPackageByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) ListThemes(c *gin.Context) {
	items, err := s.catalogSvc.ListThemes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"themes": items})
}
