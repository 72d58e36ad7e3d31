package handlers

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/rcmedia-dev/kerhome-sub002/internal/models"
	"github.com/rcmedia-dev/kerhome-sub002/internal/repository"
)

type stubProfileRepo struct {
	profile         *models.Profile
	updateAvatarErr error
	savedAvatarURL  string
}

func (s *stubProfileRepo) GetByID(_ context.Context, _ string) (*models.Profile, error) {
	return s.profile, nil
}

func (s *stubProfileRepo) Update(_ context.Context, _ string, _ repository.UpdateProfileInput) (*models.Profile, error) {
	return s.profile, nil
}

func (s *stubProfileRepo) UpdateAvatar(_ context.Context, _ string, avatarURL string) error {
	if s.updateAvatarErr != nil {
		return s.updateAvatarErr
	}
	s.savedAvatarURL = avatarURL
	return nil
}

type stubStorage struct {
	uploadedURL string
	uploadErr   error
	deleted     []string
}

func (s *stubStorage) UploadFile(_ context.Context, _ multipart.File, _ string, _ string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return s.uploadedURL, nil
}

func (s *stubStorage) DeleteFile(_ context.Context, fileURL string) error {
	s.deleted = append(s.deleted, fileURL)
	return nil
}

func newProfileTestApp(repo *stubProfileRepo, storage *stubStorage) *fiber.App {
	handler := NewProfileHandler(repo, storage)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", testUserID)
		return c.Next()
	})
	app.Post("/api/v1/profiles/me/avatar", handler.UploadAvatar)
	return app
}

func avatarUploadRequest(t *testing.T, contentType string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="avatar"; filename="avatar.png"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write([]byte("fake image bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profiles/me/avatar", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadAvatarReplacesOldObject(t *testing.T) {
	oldURL := "https://project.supabase.co/storage/v1/object/public/kerhome/avatars/u1/old.png"
	repo := &stubProfileRepo{
		profile: &models.Profile{ID: testUserID, AvatarURL: &oldURL},
	}
	storage := &stubStorage{uploadedURL: "https://project.supabase.co/storage/v1/object/public/kerhome/avatars/u1/new.png"}
	app := newProfileTestApp(repo, storage)

	resp, err := app.Test(avatarUploadRequest(t, "image/png"))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if repo.savedAvatarURL != storage.uploadedURL {
		t.Fatalf("saved %q, want %q", repo.savedAvatarURL, storage.uploadedURL)
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != oldURL {
		t.Fatalf("expected old avatar deleted, got %v", storage.deleted)
	}
}

func TestUploadAvatarCleansUpWhenSaveFails(t *testing.T) {
	repo := &stubProfileRepo{
		profile:         &models.Profile{ID: testUserID},
		updateAvatarErr: errors.New("row update failed"),
	}
	storage := &stubStorage{uploadedURL: "https://project.supabase.co/storage/v1/object/public/kerhome/avatars/u1/new.png"}
	app := newProfileTestApp(repo, storage)

	resp, err := app.Test(avatarUploadRequest(t, "image/png"))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != storage.uploadedURL {
		t.Fatalf("expected orphaned upload deleted, got %v", storage.deleted)
	}
}

func TestUploadAvatarRejectsUnsupportedType(t *testing.T) {
	repo := &stubProfileRepo{profile: &models.Profile{ID: testUserID}}
	storage := &stubStorage{uploadedURL: "unused"}
	app := newProfileTestApp(repo, storage)

	resp, err := app.Test(avatarUploadRequest(t, "application/pdf"))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(storage.deleted) != 0 {
		t.Fatalf("nothing should be deleted, got %v", storage.deleted)
	}
}

func TestUploadAvatarWithoutStorageConfigured(t *testing.T) {
	repo := &stubProfileRepo{profile: &models.Profile{ID: testUserID}}
	handler := NewProfileHandler(repo, nil)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", testUserID)
		return c.Next()
	})
	app.Post("/api/v1/profiles/me/avatar", handler.UploadAvatar)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profiles/me/avatar", strings.NewReader(""))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
