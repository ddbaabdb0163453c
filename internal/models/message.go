package models

import (
	"errors"
	"time"
)

// BodyKind tags what a message carries.
type BodyKind string

const (
	KindText  BodyKind = "text"
	KindImage BodyKind = "image"
	KindMixed BodyKind = "mixed"
)

// ErrEmptyBody is returned when a message has neither text nor an image.
var ErrEmptyBody = errors.New("message body is empty")

// Body is the validated content of a message. Exactly one construction
// path exists so the text/image variant is always tagged.
type Body struct {
	Kind     BodyKind
	Text     string
	ImageURL string
}

// NewBody builds a tagged message body from the optional text and image
// reference, rejecting the case where both are absent.
func NewBody(text, imageURL string) (Body, error) {
	switch {
	case text != "" && imageURL != "":
		return Body{Kind: KindMixed, Text: text, ImageURL: imageURL}, nil
	case text != "":
		return Body{Kind: KindText, Text: text}, nil
	case imageURL != "":
		return Body{Kind: KindImage, ImageURL: imageURL}, nil
	default:
		return Body{}, ErrEmptyBody
	}
}

// Message is a persisted direct message between two users.
type Message struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID int       `db:"receiver_id" json:"receiver_id"`
	Kind       BodyKind  `db:"kind" json:"kind"`
	Text       string    `db:"text" json:"text,omitempty"`
	ImageURL   string    `db:"image_url" json:"image_url,omitempty"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
