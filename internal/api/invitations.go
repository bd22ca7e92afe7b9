package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/makemykankotri/kankotri/internal/services"
	"github.com/makemykankotri/kankotri/pkg/generator"
)

// publishInvitation stores a filled-in form and returns its public URL
func (s *Server) publishInvitation(c *gin.Context) {
	var sub services.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	published, err := s.deps.Invitations.Publish(c.Request.Context(), sub)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, published)
}

// getInvitation returns the stored data of an invitation, by id or share code
func (s *Server) getInvitation(c *gin.Context) {
	inv, err := s.deps.Invitations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// invitationPage serves the rendered invitation and counts the view
func (s *Server) invitationPage(c *gin.Context) {
	page, err := s.deps.Invitations.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			c.Data(http.StatusNotFound, htmlContentType, []byte("<!DOCTYPE html><title>Not found</title><p>This invitation does not exist.</p>"))
			return
		}
		s.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, htmlContentType, []byte(page))
}

// generateContent writes invitation copy with the ai-assist plugin
func (s *Server) generateContent(c *gin.Context) {
	var req generator.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	content, err := s.deps.Assist.Generate(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

// listFeatures returns the current feature flags
func (s *Server) listFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"features": s.deps.Flags.All()})
}
