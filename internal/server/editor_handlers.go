package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/editor"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/imaging"
	"github.com/gin-gonic/gin"
)

type openSessionRequest struct {
	Profile    string `json:"profile"`
	DocumentID string `json:"documentId"`
	TemplateID string `json:"templateId"`
}

type imageURLRequest struct {
	URL       string `json:"url"`
	Confirmed bool   `json:"confirmed"`
}

type imageResponse struct {
	Result    imaging.Result `json:"result"`
	ElementID string         `json:"elementId"`
	View      editor.View    `json:"view"`
}

type saveRequest struct {
	EventData  documents.EventData  `json:"eventData"`
	Visibility documents.Visibility `json:"visibility"`
}

func (h *httpHandler) handleOpenSession(c *gin.Context) {
	var request openSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithReason(c, http.StatusBadRequest, "invalid_request")
		return
	}
	principal := principalFrom(c)
	ctx := c.Request.Context()
	cfg := editor.SessionConfig{
		Profile:     editor.Profile(request.Profile),
		Principal:   principal,
		Persister:   h.documents,
		Blobs:       h.blobs,
		ShareOrigin: h.shareOrigin,
	}
	if id := strings.TrimSpace(request.DocumentID); id != "" {
		doc, err := h.documents.LoadForEdit(ctx, principal, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		cfg.Document = &doc
	} else if id := strings.TrimSpace(request.TemplateID); id != "" {
		template, err := h.documents.Load(ctx, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if template.Kind != documents.KindTemplate || (!template.Visibility.IsPublic && !principal.Admin) {
			abortWithReason(c, http.StatusNotFound, "template_not_found")
			return
		}
		cfg.Template = &template
	}
	session, err := h.editor.Create(cfg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session.View())
}

// session resolves the :id session for the caller, writing the error response when it is missing.
func (h *httpHandler) session(c *gin.Context) (*editor.Session, bool) {
	session, err := h.editor.Get(c.Param("id"), principalFrom(c))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return session, true
}

func (h *httpHandler) handleSessionView(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.View())
}

func (h *httpHandler) handleSessionCommand(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var cmd editor.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		abortWithReason(c, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := session.Apply(cmd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleSessionImage resolves the image for the armed image tool. Multipart requests upload a
// file; JSON requests submit a URL.
func (h *httpHandler) handleSessionImage(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var (
		result    imaging.Result
		elementID string
		err       error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, ok := readUploadedFile(c)
		if !ok {
			return
		}
		result, elementID, err = session.AcquireFile(c.Request.Context(), file)
	} else {
		var request imageURLRequest
		if bindErr := c.ShouldBindJSON(&request); bindErr != nil {
			abortWithReason(c, http.StatusBadRequest, "invalid_request")
			return
		}
		result, elementID, err = session.AcquireURL(c.Request.Context(), request.URL, request.Confirmed)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, imageResponse{Result: result, ElementID: elementID, View: session.View()})
}

func (h *httpHandler) handleSessionSave(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var request saveRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithReason(c, http.StatusBadRequest, "invalid_request")
		return
	}
	saved, err := session.OnSave(c.Request.Context(), request.EventData, request.Visibility)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.documentsSaved.WithLabelValues(string(session.Profile().DocumentKind())).Inc()
	}
	c.JSON(http.StatusOK, saved)
}

func (h *httpHandler) handleSessionCancel(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.OnCancel()
	c.JSON(http.StatusOK, session.View())
}

func (h *httpHandler) handleCloseSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.editor.Close(session.ID())
	c.Status(http.StatusNoContent)
}
