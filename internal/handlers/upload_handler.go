package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/models"
	"alfredoptarigan/cv-evaluation-pipeline/internal/repositories"
	"alfredoptarigan/cv-evaluation-pipeline/internal/services"
)

type UploadHandler struct {
	docRepo        repositories.DocumentRepository
	storageService services.StorageService
	pdfParser      services.PDFParserService
	maxFileSize    int64
	log            *zap.Logger
}

func NewUploadHandler(
	docRepo repositories.DocumentRepository,
	storageService services.StorageService,
	pdfParser services.PDFParserService,
	maxFileSize int64,
	log *zap.Logger,
) *UploadHandler {
	return &UploadHandler{
		docRepo:        docRepo,
		storageService: storageService,
		pdfParser:      pdfParser,
		maxFileSize:    maxFileSize,
		log:            log,
	}
}

// HandleUpload handles POST /upload. Both the CV and the project submission
// are required; each is stored as extracted text.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse multipart form",
		})
	}

	cvFile := firstFile(form, "cv")
	submissionFile := firstFile(form, "submission")
	if cvFile == nil || submissionFile == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Please attach both 'cv' and 'submission' as PDF files",
		})
	}

	cvDoc, err := h.storeDocument(c, cvFile, models.DocumentTypeCV)
	if err != nil {
		return err
	}

	submissionDoc, err := h.storeDocument(c, submissionFile, models.DocumentTypeSubmission)
	if err != nil {
		h.discardDocument(c, cvDoc)
		return err
	}

	h.log.Info("documents uploaded",
		zap.String("cv_id", cvDoc.ID.String()),
		zap.String("submission_id", submissionDoc.ID.String()))

	return c.Status(fiber.StatusCreated).JSON(models.UploadResponse{
		Message:      "Your cv and project submission stored",
		CVID:         cvDoc.ID.String(),
		SubmissionID: submissionDoc.ID.String(),
	})
}

// storeDocument saves the file, extracts its text and records it. Failures
// are returned as *fiber.Error for the app error handler.
func (h *UploadHandler) storeDocument(c *fiber.Ctx, file *multipart.FileHeader, docType models.DocumentType) (*models.Document, error) {
	if file.Size > h.maxFileSize {
		return nil, fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("%s file too large. Max size: %d bytes", docType, h.maxFileSize))
	}

	filename, filePath, err := h.storageService.SaveFile(file, docType)
	if err != nil {
		if errors.Is(err, services.ErrInvalidFileType) {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s: %v", docType, err))
		}
		h.log.Error("failed to save upload", zap.String("doc_type", string(docType)), zap.Error(err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("failed to save %s file", docType))
	}

	text, err := h.pdfParser.ExtractText(filePath)
	if err != nil {
		h.removeFile(filename)
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity,
			fmt.Sprintf("Error while processing %s file: %v", docType, err))
	}

	doc := &models.Document{
		DocType:          docType,
		OriginalFileName: file.Filename,
		FilePath:         filePath,
		Content:          services.StripNUL(text),
	}

	if err := h.docRepo.Create(c.UserContext(), doc); err != nil {
		h.removeFile(filename)
		h.log.Error("failed to save document record", zap.String("doc_type", string(docType)), zap.Error(err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("failed to save %s document record", docType))
	}

	return doc, nil
}

// discardDocument removes a stored document and its file after a later
// step of the same upload failed.
func (h *UploadHandler) discardDocument(c *fiber.Ctx, doc *models.Document) {
	if err := h.docRepo.Delete(c.UserContext(), doc.ID); err != nil {
		h.log.Warn("failed to discard document", zap.String("doc_id", doc.ID.String()), zap.Error(err))
	}
	h.removeFile(filepath.Base(doc.FilePath))
}

func (h *UploadHandler) removeFile(filename string) {
	if err := h.storageService.DeleteFile(filename); err != nil {
		h.log.Warn("failed to clean up upload", zap.String("file", filename), zap.Error(err))
	}
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if files, ok := form.File[field]; ok && len(files) > 0 {
		return files[0]
	}
	return nil
}
