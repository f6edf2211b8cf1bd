package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/ilyra-ai/december/internal/model"
)

// Request carries one full conversation turn to a provider transport. The
// system prompt travels separately from Messages because providers disagree
// on where it belongs on the wire.
type Request struct {
	Model       string
	System      string
	Temperature *float64
	Messages    []model.Message
}

type Response struct {
	Text string
}

type Provider interface {
	Chat(ctx context.Context, req Request) (Response, error)
}

// StreamingProvider is implemented by transports that can deliver token
// deltas. emit receives each non-empty delta; returning an error aborts the
// stream.
type StreamingProvider interface {
	Provider
	ChatStream(ctx context.Context, req Request, emit func(delta string) error) error
}

// DocumentBlock renders a document attachment as a labeled text block.
// Documents are never forwarded as binary parts: every provider sees them
// decoded and spliced in immediately after the primary text part.
func DocumentBlock(att model.Attachment) string {
	text := att.Data
	if raw, err := base64.StdEncoding.DecodeString(att.Data); err == nil {
		text = string(raw)
	}
	return fmt.Sprintf("Document %q content:\n%s", att.Name, text)
}
