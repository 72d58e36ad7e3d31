package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/rcmedia-dev/kerhome-sub002/internal/models"
)

type contactSearcher interface {
	Search(ctx context.Context, requesterID string, query string, page int) (*models.ContactPage, error)
}

type ContactHandler struct {
	service contactSearcher
}

func NewContactHandler(service contactSearcher) *ContactHandler {
	return &ContactHandler{service: service}
}

// SearchContacts backs the start-new-chat view. Sub-minimum queries come back
// as an empty page rather than an error so the UI can search-as-you-type.
func (h *ContactHandler) SearchContacts(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	page := parsePositiveInt(c.Query("page"), 1)

	result, err := h.service.Search(c.Context(), userID, c.Query("q"), page)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(result)
}
