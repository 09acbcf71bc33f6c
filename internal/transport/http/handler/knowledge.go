package handler

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"ragchat/internal/app"
	"ragchat/internal/pkg/pdfextract"
	"ragchat/internal/transport/http/response"
)

const maxUploadBytes = 20 << 20 // 20 MiB

type KnowledgeHandler struct {
	knowledgeService *app.KnowledgeService
}

func NewKnowledgeHandler(knowledgeService *app.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledgeService: knowledgeService}
}

type InsertTextRequest struct {
	Name string `json:"name"`
	Text string `json:"text" binding:"required"`
}

// InsertText ingests a raw text document into the knowledge base.
func (h *KnowledgeHandler) InsertText(c *gin.Context) {
	var req InsertTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return
	}

	result, err := h.knowledgeService.Insert(c.Request.Context(), req.Name, req.Text)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, 400, response.CodeBadRequest, "document text is empty")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "insert document failed")
		return
	}

	response.OK(c, result)
}

// UploadPDF ingests an uploaded PDF file. The extracted plain text goes
// through the same pipeline as raw text inserts.
func (h *KnowledgeHandler) UploadPDF(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, 400, response.CodeBadRequest, "missing file upload")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.Error(c, 400, response.CodeBadRequest, "file too large")
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		response.Error(c, 400, response.CodeBadRequest, "only PDF files are supported")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, 500, response.CodeInternalServer, "open upload failed")
		return
	}
	defer file.Close()

	text, err := pdfextract.ExtractText(file)
	if err != nil {
		response.Error(c, 400, response.CodeBadRequest, "failed to extract text from PDF")
		return
	}
	if strings.TrimSpace(text) == "" {
		response.Error(c, 400, response.CodeBadRequest, "PDF contains no extractable text")
		return
	}

	name := strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	result, err := h.knowledgeService.Insert(c.Request.Context(), name, text)
	if err != nil {
		response.Error(c, 500, response.CodeInternalServer, "insert document failed")
		return
	}

	response.OK(c, result)
}

func (h *KnowledgeHandler) ListDocuments(c *gin.Context) {
	docs, err := h.knowledgeService.ListDocuments()
	if err != nil {
		response.Error(c, 500, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}
