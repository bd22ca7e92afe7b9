package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/makemykankotri/kankotri/pkg/editor"
	"github.com/makemykankotri/kankotri/pkg/middleware"
	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

// AddElementRequest inserts an element, optionally into a container
type AddElementRequest struct {
	Element  json.RawMessage `json:"element"`
	ParentID string          `json:"parentId,omitempty"`
}

// SelectRequest changes the selected element. An empty id clears it.
type SelectRequest struct {
	ElementID string `json:"elementId"`
}

func (s *Server) registerEditorRoutes(g *gin.RouterGroup) {
	g.POST("", s.openEditor)
	g.GET("", s.editorState)
	g.DELETE("", s.closeEditor)
	g.POST("/elements", s.addElement)
	g.PATCH("/elements/:elementId", s.updateElement)
	g.DELETE("/elements/:elementId", s.removeElement)
	g.POST("/elements/:elementId/duplicate", s.duplicateElement)
	g.POST("/select", s.selectElement)
	g.PUT("/layout", s.setLayout)
	g.POST("/undo", s.undo)
	g.POST("/redo", s.redo)
	g.POST("/save", s.saveEditor)
}

// editorCall runs fn for the session named in the path and writes the
// resulting state
func (s *Server) editorCall(c *gin.Context, fn func(id uuid.UUID) (editor.State, error)) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	state, err := fn(id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) openEditor(c *gin.Context) {
	s.editorCall(c, func(id uuid.UUID) (editor.State, error) {
		return s.deps.Editor.Open(c.Request.Context(), id, middleware.Subject(c))
	})
}

func (s *Server) editorState(c *gin.Context) {
	s.editorCall(c, s.deps.Editor.State)
}

// closeEditor ends the session, discarding unsaved changes
func (s *Server) closeEditor(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Editor.Close(id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addElement(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var req AddElementRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Element) == 0 {
		s.badRequest(c, "body must contain an element")
		return
	}
	if s.deps.Validator != nil {
		if err := s.deps.Validator.Validate(validation.Element, req.Element); err != nil {
			s.respondError(c, err)
			return
		}
	}
	var el models.Element
	if err := json.Unmarshal(req.Element, &el); err != nil {
		s.badRequest(c, "invalid element: "+err.Error())
		return
	}

	added, state, err := s.deps.Editor.AddElement(id, el, req.ParentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"element": added, "state": state})
}

func (s *Server) updateElement(c *gin.Context) {
	var patch editor.ElementPatch
	if !s.bindValidated(c, validation.ElementPatch, &patch) {
		return
	}
	s.editorCall(c, func(id uuid.UUID) (editor.State, error) {
		return s.deps.Editor.UpdateElement(id, c.Param("elementId"), patch)
	})
}

func (s *Server) removeElement(c *gin.Context) {
	s.editorCall(c, func(id uuid.UUID) (editor.State, error) {
		return s.deps.Editor.RemoveElement(id, c.Param("elementId"))
	})
}

func (s *Server) duplicateElement(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	dup, state, err := s.deps.Editor.DuplicateElement(id, c.Param("elementId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"element": dup, "state": state})
}

func (s *Server) selectElement(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	s.editorCall(c, func(id uuid.UUID) (editor.State, error) {
		return s.deps.Editor.Select(id, req.ElementID)
	})
}

func (s *Server) setLayout(c *gin.Context) {
	var layout models.Layout
	if !s.bindValidated(c, validation.Layout, &layout) {
		return
	}
	s.editorCall(c, func(id uuid.UUID) (editor.State, error) {
		return s.deps.Editor.SetLayout(id, layout)
	})
}

func (s *Server) undo(c *gin.Context) {
	s.editorCall(c, s.deps.Editor.Undo)
}

func (s *Server) redo(c *gin.Context) {
	s.editorCall(c, s.deps.Editor.Redo)
}

// saveEditor writes the session template to storage now
func (s *Server) saveEditor(c *gin.Context) {
	s.editorCall(c, func(id uuid.UUID) (editor.State, error) {
		return s.deps.Editor.Save(c.Request.Context(), id)
	})
}
