package chat

import "github.com/kagent-dev/mcpchat/pkg/models"

// Conversation is the ordered message history of one chat run. It is owned by
// a single Loop and is not safe for concurrent use.
type Conversation struct {
	system   *models.Message
	messages []models.Message
}

// NewConversation starts a history holding only the system message. An empty
// prompt starts an empty history.
func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		msg := models.SystemMessage(systemPrompt)
		c.system = &msg
		c.messages = []models.Message{msg}
	}
	return c
}

func (c *Conversation) Append(msg models.Message) {
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []models.Message {
	return append([]models.Message(nil), c.messages...)
}

func (c *Conversation) Len() int {
	return len(c.messages)
}

// Clear erases the whole history, system message included.
func (c *Conversation) Clear() {
	c.messages = nil
}

// Reset erases the history and reinserts the system message.
func (c *Conversation) Reset() {
	c.messages = nil
	if c.system != nil {
		c.messages = append(c.messages, *c.system)
	}
}
