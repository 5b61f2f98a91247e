package server

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/imaging"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/render"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	contentTypePNG = "image/png"
	formFieldFile  = "file"
)

// bindDocument decodes the stored layout. Ownership and timestamps always come from the service.
func bindDocument(c *gin.Context, id string) (documents.Document, bool) {
	var doc documents.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		abortWithReason(c, http.StatusBadRequest, "invalid_request")
		return documents.Document{}, false
	}
	doc.ID = id
	doc.OwnerID = ""
	return doc, true
}

type documentListPayload struct {
	Documents []documents.Document `json:"documents"`
}

// viewerPayload is what guests see. It never carries the PIN or the owner.
type viewerPayload struct {
	ID        string              `json:"id"`
	EventData documents.EventData `json:"eventData"`
	Elements  []elements.Element  `json:"elements"`
	IsPublic  bool                `json:"isPublic"`
}

type templateSummary struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Elements  []elements.Element `json:"elements"`
	UpdatedAt int64              `json:"updatedAtMs"`
}

type sharePayload struct {
	URL    string `json:"url"`
	QRCode string `json:"qrCodePng"`
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	docs, err := h.documents.ListOwned(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentListPayload{Documents: docs})
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	doc, ok := bindDocument(c, "")
	if !ok {
		return
	}
	saved, err := h.documents.Save(c.Request.Context(), principalFrom(c), doc)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.countSave(saved)
	c.JSON(http.StatusCreated, saved)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	doc, err := h.documents.LoadForEdit(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *httpHandler) handleUpdateDocument(c *gin.Context) {
	doc, ok := bindDocument(c, c.Param("id"))
	if !ok {
		return
	}
	saved, err := h.documents.Save(c.Request.Context(), principalFrom(c), doc)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.countSave(saved)
	c.JSON(http.StatusOK, saved)
}

func (h *httpHandler) handleDeleteDocument(c *gin.Context) {
	principal := principalFrom(c)
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), principal, id); err != nil {
		h.respondError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{UserID: principal.UID, EventType: RealtimeEventDocumentDeleted, DocumentIDs: []string{id}})
	c.Status(http.StatusNoContent)
}

// handleShare returns the viewer link and its QR code. format=png returns the QR image alone.
func (h *httpHandler) handleShare(c *gin.Context) {
	doc, err := h.documents.LoadForEdit(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	link, err := documents.ShareLink(h.shareOrigin, doc, documents.ShareOptions{
		Path:     documents.SharePath(c.DefaultQuery("path", string(documents.SharePathInvite))),
		EmbedPIN: c.Query("embedPin") == "true",
	})
	if err != nil {
		abortWithReason(c, http.StatusBadRequest, "invalid_share_request")
		return
	}
	size, _ := strconv.Atoi(c.Query("size"))
	code, err := documents.QRCode(link, size)
	if err != nil {
		h.logger.Error("qr encoding failed", zap.String("document_id", doc.ID), zap.Error(err))
		abortWithReason(c, http.StatusInternalServerError, "qr_failed")
		return
	}
	if c.Query("format") == "png" {
		c.Data(http.StatusOK, contentTypePNG, code)
		return
	}
	c.JSON(http.StatusOK, sharePayload{URL: link, QRCode: base64.StdEncoding.EncodeToString(code)})
}

func (h *httpHandler) handleRender(c *gin.Context) {
	doc, err := h.documents.LoadForEdit(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.writeRender(c, doc)
}

func (h *httpHandler) handleInvite(c *gin.Context) {
	doc, ok := h.loadInvite(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewerPayload{
		ID:        doc.ID,
		EventData: doc.Event,
		Elements:  doc.Elements,
		IsPublic:  doc.Visibility.IsPublic,
	})
}

func (h *httpHandler) handleInviteRender(c *gin.Context) {
	doc, ok := h.loadInvite(c)
	if !ok {
		return
	}
	h.writeRender(c, doc)
}

// loadInvite fetches an event for the guest viewer and applies the PIN display gate.
func (h *httpHandler) loadInvite(c *gin.Context) (documents.Document, bool) {
	doc, err := h.documents.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return documents.Document{}, false
	}
	if doc.Kind != documents.KindEvent {
		abortWithReason(c, http.StatusNotFound, "not_found")
		return documents.Document{}, false
	}
	if !documents.VerifyPIN(doc, c.Query("pin")) {
		abortWithReason(c, http.StatusForbidden, "pin_required")
		return documents.Document{}, false
	}
	return doc, true
}

func (h *httpHandler) writeRender(c *gin.Context, doc documents.Document) {
	scale, _ := strconv.ParseFloat(c.Query("scale"), 64)
	encoded, err := render.PNG(doc.Elements, geometry.DefaultBounds(), render.Options{Scale: scale})
	if err != nil {
		h.logger.Error("render failed", zap.String("document_id", doc.ID), zap.Error(err))
		abortWithReason(c, http.StatusInternalServerError, "render_failed")
		return
	}
	c.Data(http.StatusOK, contentTypePNG, encoded)
}

func (h *httpHandler) handleTemplates(c *gin.Context) {
	docs, err := h.documents.ListPublic(c.Request.Context(), documents.KindTemplate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	summaries := make([]templateSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, templateSummary{
			ID:        doc.ID,
			Title:     doc.Event.Title,
			Elements:  doc.Elements,
			UpdatedAt: doc.UpdatedAt.UnixMilli(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"templates": summaries})
}

func (h *httpHandler) handleAdminDocuments(c *gin.Context) {
	docs, err := h.documents.ListAll(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentListPayload{Documents: docs})
}

// handleUploadImage resolves a single uploaded file outside any editor session.
func (h *httpHandler) handleUploadImage(c *gin.Context) {
	file, ok := readUploadedFile(c)
	if !ok {
		return
	}
	acquisition := imaging.NewAcquisition(imaging.AcquisitionConfig{
		Principal: principalFrom(c),
		Blobs:     h.blobs,
		Clock:     h.clock,
		Logger:    h.logger,
	})
	if err := acquisition.Open(imaging.MethodFile); err != nil {
		h.respondError(c, err)
		return
	}
	if err := acquisition.SubmitFile(file); err != nil {
		h.respondError(c, err)
		return
	}
	result, err := acquisition.Resolve(c.Request.Context(), false)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// readUploadedFile reads the multipart file field, reading at most one byte past the size cap so
// the acquisition can reject oversized files.
func readUploadedFile(c *gin.Context) (imaging.File, bool) {
	header, err := c.FormFile(formFieldFile)
	if err != nil {
		abortWithReason(c, http.StatusBadRequest, "missing_file")
		return imaging.File{}, false
	}
	opened, err := header.Open()
	if err != nil {
		abortWithReason(c, http.StatusBadRequest, "unreadable_file")
		return imaging.File{}, false
	}
	defer opened.Close()
	data, err := io.ReadAll(io.LimitReader(opened, imaging.MaxFileSize+1))
	if err != nil {
		abortWithReason(c, http.StatusBadRequest, "unreadable_file")
		return imaging.File{}, false
	}
	return imaging.File{Name: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}, true
}

func (h *httpHandler) countSave(doc documents.Document) {
	if h.metrics != nil {
		h.metrics.documentsSaved.WithLabelValues(string(doc.Kind)).Inc()
	}
}
