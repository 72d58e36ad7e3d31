package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rcmedia-dev/kerhome-sub002/internal/models"
)

const (
	ContactPageSize      = 10
	minContactQueryRunes = 2
)

type contactRepository interface {
	SearchContacts(ctx context.Context, requesterID string, query string, limit int, offset int) ([]models.Contact, int, error)
}

// ContactService backs the start-new-chat search: other users matched by name
// or email, annotated with any conversation the requester already has with
// them.
type ContactService struct {
	repo contactRepository
}

func NewContactService(repo contactRepository) *ContactService {
	return &ContactService{repo: repo}
}

// Search returns one fixed-size page of matches. Queries shorter than two
// characters return an empty page without touching the store.
func (s *ContactService) Search(
	ctx context.Context,
	requesterID string,
	query string,
	page int,
) (*models.ContactPage, error) {
	if requesterID == "" {
		return nil, ErrInvalidInput
	}
	if page <= 0 {
		page = 1
	}

	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < minContactQueryRunes {
		return &models.ContactPage{
			Contacts:   []models.Contact{},
			TotalCount: 0,
			Page:       page,
			HasMore:    false,
		}, nil
	}

	offset := (page - 1) * ContactPageSize
	contacts, total, err := s.repo.SearchContacts(ctx, requesterID, trimmed, ContactPageSize, offset)
	if err != nil {
		return nil, err
	}

	return &models.ContactPage{
		Contacts:   contacts,
		TotalCount: total,
		Page:       page,
		HasMore:    offset+len(contacts) < total,
	}, nil
}
