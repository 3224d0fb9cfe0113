package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/byerlikaya/SmartRAG-sub014/services"
)

type DocumentHandlers struct {
	documentService services.DocumentService
}

func NewDocumentHandlers(documentService services.DocumentService) *DocumentHandlers {
	return &DocumentHandlers{documentService: documentService}
}

// ListDocuments returns regular documents, newest first. Schema documents
// generated by the catalog live behind /documents/schemas instead.
func (h *DocumentHandlers) ListDocuments(c *gin.Context) {
	h.list(c, false)
}

func (h *DocumentHandlers) ListSchemaDocuments(c *gin.Context) {
	h.list(c, true)
}

func (h *DocumentHandlers) list(c *gin.Context, schemaDocuments bool) {
	skip, err := queryIntDefault(c, "skip", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid skip parameter", "details": err.Error()})
		return
	}
	take, err := queryIntDefault(c, "take", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid take parameter", "details": err.Error()})
		return
	}

	resp, err := h.documentService.ListDocuments(c.Request.Context(), skip, take, schemaDocuments)
	if err != nil {
		respondError(c, "Failed to list documents", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandlers) GetDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
		return
	}

	doc, err := h.documentService.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Failed to get document", err)
		return
	}
	c.JSON(http.StatusOK, doc.Summary())
}

func (h *DocumentHandlers) GetDocumentChunks(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
		return
	}

	chunks, err := h.documentService.GetDocumentChunks(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Failed to get document chunks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documentId": id, "count": len(chunks), "chunks": chunks})
}

// UploadDocument accepts a multipart form with the file, the uploader name,
// and an optional language hint. The file is parsed, chunked, embedded, and
// stored before the response returns.
func (h *DocumentHandlers) UploadDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "details": err.Error()})
		return
	}
	defer file.Close()

	uploadedBy := c.PostForm("uploadedBy")
	if uploadedBy == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploadedBy is required"})
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file", "details": err.Error()})
		return
	}

	doc, err := h.documentService.UploadDocument(c.Request.Context(), services.UploadRequest{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		UploadedBy:  uploadedBy,
		Language:    c.PostForm("language"),
	})
	if err != nil {
		respondError(c, "Failed to upload document", err)
		return
	}
	c.JSON(http.StatusCreated, doc.Summary())
}

func (h *DocumentHandlers) DeleteDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
		return
	}

	if err := h.documentService.DeleteDocument(c.Request.Context(), id); err != nil {
		respondError(c, "Failed to delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}

func (h *DocumentHandlers) DeleteAllDocuments(c *gin.Context) {
	if err := h.documentService.DeleteAllDocuments(c.Request.Context()); err != nil {
		respondError(c, "Failed to delete documents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All documents deleted successfully"})
}

func (h *DocumentHandlers) GetSupportedTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"supportedTypes": h.documentService.SupportedTypes()})
}

func queryIntDefault(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
