package chat

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a session transcript. Content is append-only while
// the message is streaming and immutable once Sealed is set. A Failed message
// keeps whatever content was delivered before the stream broke.
type Message struct {
	ID        uuid.UUID
	Role      Role
	Content   string
	Sealed    bool
	Failed    bool
	Model     string
	CreatedAt time.Time
}

func newMessage(role Role, content, model string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Model:     model,
		CreatedAt: time.Now(),
	}
}
