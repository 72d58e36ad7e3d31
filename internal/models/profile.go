package models

import (
	"strings"
	"time"
)

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
	PresenceAway    = "away"

	RoleUser  = "user"
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// Profile is a marketplace user or agent. Rows are created at signup by the
// identity provider and are never hard-deleted.
type Profile struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Status    string    `json:"status"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName derives the name shown in conversation lists. It is computed,
// never stored.
func (p *Profile) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		return p.Email
	}
	return name
}

func ValidPresenceStatus(status string) bool {
	switch status {
	case PresenceOnline, PresenceOffline, PresenceAway:
		return true
	}
	return false
}
