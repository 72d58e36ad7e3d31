package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rcmedia-dev/kerhome-sub002/internal/services"
)

// AttachmentHandler uploads chat attachments to object storage. The client
// uploads first, then references the returned URL in a send-message call.
type AttachmentHandler struct {
	storageService services.StorageService
}

func NewAttachmentHandler(storageService services.StorageService) *AttachmentHandler {
	return &AttachmentHandler{storageService: storageService}
}

func (h *AttachmentHandler) UploadAttachment(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if h.storageService == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File storage is not configured"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	if fileHeader.Size > services.MaxAttachmentSizeBytes {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Attachment exceeds the 10MB limit"})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	objectName, ok := services.AttachmentObjectName(contentType)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unsupported attachment type"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to read attachment"})
	}
	defer file.Close()

	fileURL, err := h.storageService.UploadFile(c.Context(), file, objectName, "chat-attachments/"+userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload attachment"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":  fileURL,
		"type": contentType,
	})
}
