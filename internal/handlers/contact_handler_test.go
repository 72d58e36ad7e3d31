package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/rcmedia-dev/kerhome-sub002/internal/models"
)

type stubContactService struct {
	result        *models.ContactPage
	err           error
	lastRequester string
	lastQuery     string
	lastPage      int
}

func (s *stubContactService) Search(_ context.Context, requesterID string, query string, page int) (*models.ContactPage, error) {
	s.lastRequester = requesterID
	s.lastQuery = query
	s.lastPage = page
	return s.result, s.err
}

func newContactTestApp(service *stubContactService) *fiber.App {
	handler := NewContactHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", testUserID)
		return c.Next()
	})
	app.Get("/api/v1/contacts", handler.SearchContacts)
	return app
}

func TestSearchContactsReturnsAnnotatedPage(t *testing.T) {
	service := &stubContactService{
		result: &models.ContactPage{
			Contacts: []models.Contact{
				{
					Profile:                 models.Profile{ID: testAgentID, FirstName: "Ana", Email: "ana@kerhome.co.ao"},
					HasExistingConversation: true,
					ConversationID:          testConversationID,
				},
				{
					Profile: models.Profile{ID: "9e5f1a2b-3c4d-4e5f-8a6b-777777777777", FirstName: "Anselmo"},
				},
			},
			TotalCount: 2,
			Page:       1,
			HasMore:    false,
		},
	}
	app := newContactTestApp(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts?q=an", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastRequester != testUserID || service.lastQuery != "an" || service.lastPage != 1 {
		t.Fatalf("unexpected forwarded search: %q %q %d", service.lastRequester, service.lastQuery, service.lastPage)
	}

	var body models.ContactPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Contacts) != 2 || !body.Contacts[0].HasExistingConversation {
		t.Fatalf("unexpected contacts: %+v", body.Contacts)
	}
	if body.Contacts[0].ConversationID != testConversationID {
		t.Fatalf("expected existing conversation id, got %q", body.Contacts[0].ConversationID)
	}
	if body.Contacts[1].HasExistingConversation {
		t.Fatalf("second contact should have no conversation")
	}
}

func TestSearchContactsForwardsPage(t *testing.T) {
	service := &stubContactService{
		result: &models.ContactPage{Contacts: []models.Contact{}, Page: 3},
	}
	app := newContactTestApp(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts?q=ana&page=3", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if service.lastPage != 3 {
		t.Fatalf("expected page 3, got %d", service.lastPage)
	}
}

func TestSearchContactsMapsStoreError(t *testing.T) {
	service := &stubContactService{err: errors.New("store down")}
	app := newContactTestApp(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts?q=ana", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}
