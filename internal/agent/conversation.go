package agent

// Message roles. History supplied by callers may only contain user and
// assistant roles; the system role is reserved for the prepended directive.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in the conversation, oldest first.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssembleConversation builds the ordered message sequence for one turn:
// the system directive, the caller-supplied history verbatim, then the new
// user message. History is assumed pre-validated; nothing is filtered here.
func AssembleConversation(systemPrompt string, history []Message, userMessage string) []Message {
	conv := make([]Message, 0, len(history)+2)
	conv = append(conv, Message{Role: RoleSystem, Content: systemPrompt})
	conv = append(conv, history...)
	conv = append(conv, Message{Role: RoleUser, Content: userMessage})
	return conv
}
