package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/makemykankotri/kankotri/pkg/middleware"
	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

const htmlContentType = "text/html; charset=utf-8"

// PreviewRequest carries form answers to render without saving
type PreviewRequest struct {
	Values map[string]interface{} `json:"values"`
}

// listTemplates returns published templates
func (s *Server) listTemplates(c *gin.Context) {
	filter, ok := s.templateFilter(c)
	if !ok {
		return
	}
	templates, err := s.deps.Templates.ListPublished(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "count": len(templates)})
}

// getTemplate returns one published template and counts the view
func (s *Server) getTemplate(c *gin.Context) {
	t, err := s.deps.Templates.View(c.Request.Context(), c.Param("idOrSlug"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// templateForm returns the input form of a published template
func (s *Server) templateForm(c *gin.Context) {
	form, err := s.deps.Invitations.Form(c.Request.Context(), c.Param("idOrSlug"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// previewTemplate renders the template with the submitted answers
func (s *Server) previewTemplate(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	page, err := s.deps.Invitations.Preview(c.Request.Context(), c.Param("idOrSlug"), req.Values)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, htmlContentType, []byte(page))
}

// adminListTemplates lists drafts and published templates
func (s *Server) adminListTemplates(c *gin.Context) {
	filter, ok := s.templateFilter(c)
	if !ok {
		return
	}
	filter.PublishedOnly = c.Query("published") == "true"

	templates, err := s.deps.Templates.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "count": len(templates)})
}

func (s *Server) createTemplate(c *gin.Context) {
	var input models.TemplateInput
	if !s.bindValidated(c, validation.Template, &input) {
		return
	}
	t, err := s.deps.Templates.Create(c.Request.Context(), input, middleware.Subject(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) adminGetTemplate(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	t, err := s.deps.Templates.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTemplate(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var input models.TemplateInput
	if !s.bindValidated(c, validation.Template, &input) {
		return
	}
	t, err := s.deps.Templates.Update(c.Request.Context(), id, input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Templates.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) publishTemplate(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	t, err := s.deps.Templates.Publish(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) unpublishTemplate(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	t, err := s.deps.Templates.Unpublish(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// listTemplateInvitations returns the invitations made from a template
func (s *Server) listTemplateInvitations(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	limit, offset, ok := s.pagination(c)
	if !ok {
		return
	}
	invitations, err := s.deps.Invitations.ListByTemplate(c.Request.Context(), id, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations, "count": len(invitations)})
}

func (s *Server) templateFilter(c *gin.Context) (models.TemplateFilter, bool) {
	limit, offset, ok := s.pagination(c)
	if !ok {
		return models.TemplateFilter{}, false
	}
	return models.TemplateFilter{
		Category: c.Query("category"),
		Query:    c.Query("q"),
		Limit:    limit,
		Offset:   offset,
	}, true
}

func (s *Server) pagination(c *gin.Context) (limit, offset int, ok bool) {
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			s.badRequest(c, "limit must be a non-negative integer")
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			s.badRequest(c, "offset must be a non-negative integer")
			return 0, 0, false
		}
	}
	return limit, offset, true
}

func (s *Server) paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		s.badRequest(c, "invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// bindValidated checks the raw body against the schema for kind before
// decoding it into dst
func (s *Server) bindValidated(c *gin.Context, kind validation.Kind, dst interface{}) bool {
	body, err := c.GetRawData()
	if err != nil {
		s.badRequest(c, "failed to read request body")
		return false
	}
	if s.deps.Validator != nil {
		if err := s.deps.Validator.Validate(kind, body); err != nil {
			s.respondError(c, err)
			return false
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}
