package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rcmedia-dev/kerhome-sub002/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindOrCreate returns the conversation between the two users, creating it if
// none exists. The insert targets the unique index on the normalized pair and
// re-reads on conflict, so two concurrent first contacts converge on one row.
// The second return value reports whether a new row was created.
func (r *ConversationRepository) FindOrCreate(
	ctx context.Context,
	userID string,
	targetID string,
	propertyID *string,
) (*models.Conversation, bool, error) {
	insert := `
		INSERT INTO conversations (user1_id, user2_id, property_id)
		VALUES ($1, $2, $3)
		ON CONFLICT ((LEAST(user1_id, user2_id)), (GREATEST(user1_id, user2_id))) DO NOTHING
		RETURNING id, user1_id, user2_id, property_id, created_at, updated_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, insert, userID, targetID, propertyID).Scan(
		&conversation.ID,
		&conversation.User1ID,
		&conversation.User2ID,
		&conversation.PropertyID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err == nil {
		return &conversation, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := r.GetByPair(ctx, userID, targetID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByPair matches the participant pair in either order.
func (r *ConversationRepository) GetByPair(
	ctx context.Context,
	userA string,
	userB string,
) (*models.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, property_id, created_at, updated_at
		FROM conversations
		WHERE (user1_id = $1 AND user2_id = $2) OR (user1_id = $2 AND user2_id = $1)
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, userA, userB).Scan(
		&conversation.ID,
		&conversation.User1ID,
		&conversation.User2ID,
		&conversation.PropertyID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

// GetByIDForParticipant returns pgx.ErrNoRows when the conversation does not
// exist or the caller is not one of its participants. Non-participants cannot
// distinguish the two cases.
func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID string,
	participantID string,
) (*models.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, property_id, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND (user1_id = $2 OR user2_id = $2)
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, conversationID, participantID).Scan(
		&conversation.ID,
		&conversation.User1ID,
		&conversation.User2ID,
		&conversation.PropertyID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

// ListForParticipant returns the caller's conversations, most recently active
// first, each enriched with the other participant's profile, the latest
// message and the unread count.
func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID string,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id,
			c.user1_id,
			c.user2_id,
			c.property_id,
			c.created_at,
			c.updated_at,
			p.id,
			p.first_name,
			p.last_name,
			p.email,
			p.avatar_url,
			p.phone,
			p.status,
			p.role,
			p.created_at,
			p.updated_at,
			lm.id,
			lm.sender_id,
			lm.content,
			lm.attachment_url,
			lm.attachment_type,
			lm.read_by_receiver,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		JOIN profiles p
			ON p.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, attachment_url, attachment_type, read_by_receiver, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND sender_id <> $1
			  AND read_by_receiver = FALSE
		) uc ON TRUE
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.updated_at DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var messageID sql.NullString
		var messageSenderID sql.NullString
		var messageContent sql.NullString
		var messageAttachmentURL sql.NullString
		var messageAttachmentType sql.NullString
		var messageRead sql.NullBool
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.User1ID,
			&summary.User2ID,
			&summary.PropertyID,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&summary.OtherUser.ID,
			&summary.OtherUser.FirstName,
			&summary.OtherUser.LastName,
			&summary.OtherUser.Email,
			&summary.OtherUser.AvatarURL,
			&summary.OtherUser.Phone,
			&summary.OtherUser.Status,
			&summary.OtherUser.Role,
			&summary.OtherUser.CreatedAt,
			&summary.OtherUser.UpdatedAt,
			&messageID,
			&messageSenderID,
			&messageContent,
			&messageAttachmentURL,
			&messageAttachmentType,
			&messageRead,
			&messageCreatedAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			summary.LastMessage = &models.ChatMessage{
				ID:             messageID.String,
				ConversationID: summary.ID,
				SenderID:       messageSenderID.String,
				Content:        messageContent.String,
				ReadByReceiver: messageRead.Bool,
				CreatedAt:      messageCreatedAt.Time,
			}
			if messageAttachmentURL.Valid {
				summary.LastMessage.AttachmentURL = &messageAttachmentURL.String
			}
			if messageAttachmentType.Valid {
				summary.LastMessage.AttachmentType = &messageAttachmentType.String
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, conversationID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET updated_at = NOW()
		WHERE id = $1
	`, conversationID)
	return err
}
