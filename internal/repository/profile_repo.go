package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rcmedia-dev/kerhome-sub002/internal/models"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type ProfileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, first_name, last_name, email, avatar_url, phone, status, role, created_at, updated_at`

func scanProfile(row pgx.Row, profile *models.Profile) error {
	return row.Scan(
		&profile.ID,
		&profile.FirstName,
		&profile.LastName,
		&profile.Email,
		&profile.AvatarURL,
		&profile.Phone,
		&profile.Status,
		&profile.Role,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE id = $1
	`
	var profile models.Profile
	if err := scanProfile(r.db.QueryRow(ctx, query, id), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Status    *string
}

// Update applies only the fields present in input and returns the new row.
func (r *ProfileRepository) Update(
	ctx context.Context,
	id string,
	input UpdateProfileInput,
) (*models.Profile, error) {
	assignments := make([]string, 0, 5)
	args := make([]any, 0, 6)
	args = append(args, id)

	appendAssignment := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if input.FirstName != nil {
		appendAssignment("first_name", *input.FirstName)
	}
	if input.LastName != nil {
		appendAssignment("last_name", *input.LastName)
	}
	if input.Phone != nil {
		appendAssignment("phone", *input.Phone)
	}
	if input.Status != nil {
		appendAssignment("status", *input.Status)
	}
	if len(assignments) == 0 {
		return r.GetByID(ctx, id)
	}
	assignments = append(assignments, "updated_at = NOW()")

	query := `
		UPDATE profiles
		SET ` + strings.Join(assignments, ", ") + `
		WHERE id = $1
		RETURNING ` + profileColumns

	var profile models.Profile
	if err := scanProfile(r.db.QueryRow(ctx, query, args...), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) UpdateAvatar(ctx context.Context, id string, avatarURL string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE profiles
		SET avatar_url = $2, updated_at = NOW()
		WHERE id = $1
	`, id, avatarURL)
	return err
}

// SearchContacts finds profiles other than the requester whose first name,
// last name or email contains the query, case-insensitively. Each hit is
// annotated with the id of an existing conversation with the requester, if
// any, so the client can open the thread instead of creating a duplicate.
func (r *ProfileRepository) SearchContacts(
	ctx context.Context,
	requesterID string,
	query string,
	limit int,
	offset int,
) ([]models.Contact, int, error) {
	pattern := "%" + escapeLike(query) + "%"

	totalQuery := `
		SELECT COUNT(*)
		FROM profiles p
		WHERE p.id <> $1
		  AND (p.first_name ILIKE $2 OR p.last_name ILIKE $2 OR p.email ILIKE $2)
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, requesterID, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `
		SELECT
			p.id, p.first_name, p.last_name, p.email, p.avatar_url, p.phone,
			p.status, p.role, p.created_at, p.updated_at,
			c.id
		FROM profiles p
		LEFT JOIN conversations c
			ON (c.user1_id = p.id AND c.user2_id = $1)
			OR (c.user2_id = p.id AND c.user1_id = $1)
		WHERE p.id <> $1
		  AND (p.first_name ILIKE $2 OR p.last_name ILIKE $2 OR p.email ILIKE $2)
		ORDER BY p.first_name, p.last_name, p.id
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, listQuery, requesterID, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		var contact models.Contact
		var conversationID sql.NullString
		if err := rows.Scan(
			&contact.ID,
			&contact.FirstName,
			&contact.LastName,
			&contact.Email,
			&contact.AvatarURL,
			&contact.Phone,
			&contact.Status,
			&contact.Role,
			&contact.CreatedAt,
			&contact.UpdatedAt,
			&conversationID,
		); err != nil {
			return nil, 0, err
		}

		if conversationID.Valid {
			contact.HasExistingConversation = true
			contact.ConversationID = conversationID.String
		}

		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return contacts, total, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
