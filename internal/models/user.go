package models

import "time"

// User is an entry in the user directory.
type User struct {
	ID        int       `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SidebarRow is the per-viewer summary for one counterpart: who they are,
// when the conversation last moved, and how many of their messages the
// viewer has not read yet.
type SidebarRow struct {
	User          User      `json:"user"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
}
