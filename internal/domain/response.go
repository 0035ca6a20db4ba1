package domain

// MessageType is the machine-readable severity of a response message.
type MessageType string

const (
	MessageSuccess MessageType = "S"
	MessageError   MessageType = "E"
	MessageWarning MessageType = "W"
)

// ResponseMessage is a top-level message carrying a correlation id.
type ResponseMessage struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
	Text string      `json:"text"`
}

// FieldMessage attaches a message to one field or item of the request.
type FieldMessage struct {
	Type  MessageType `json:"type"`
	ID    string      `json:"id"`
	Field string      `json:"field,omitempty"`
	Text  string      `json:"text"`
}

// ResourceMessage summarises the outcome for the addressed resource.
type ResourceMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// Messages groups resource-level and field-level messages.
type Messages struct {
	ResourceID       string          `json:"resourceId"`
	FieldMessages    []FieldMessage  `json:"fieldMessages"`
	ResourceMessages ResourceMessage `json:"resourceMessages"`
}

// Response is the envelope returned by every operation.
type Response[T any] struct {
	Data             []T               `json:"data"`
	ResponseMessages []ResponseMessage `json:"responseMessages"`
	Messages         *Messages         `json:"messages,omitempty"`
}

// Warn appends a warning field message.
func (r *Response[T]) Warn(id, field, text string) {
	if r.Messages == nil {
		r.Messages = &Messages{}
	}
	r.Messages.FieldMessages = append(r.Messages.FieldMessages, FieldMessage{
		Type: MessageWarning, ID: id, Field: field, Text: text,
	})
}
