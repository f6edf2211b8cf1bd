package model

import "time"

// ChatSession is the ordered conversation history for one target container.
// Lifetime equals process lifetime; there is no persistence tier for sessions.
type ChatSession struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"containerId"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
