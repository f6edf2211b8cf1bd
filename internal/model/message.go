package model

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "document"
)

// Attachment carries a user-provided file. Data is always base64-encoded
// regardless of type; only user messages carry attachments.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	Data     string         `json:"data"`
	Name     string         `json:"name"`
	MimeType string         `json:"mimeType"`
	Size     int64          `json:"size"`
}

// Message is one turn of a conversation. Immutable once appended to a
// session; ids are unique within a session, not globally.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
