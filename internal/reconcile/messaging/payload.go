// Package messaging reconciles WhatsApp webhook deliveries against the
// interaction log and cadence enrollments.
package messaging

// WebhookPayload is the provider's nested envelope. One POST can carry many
// entries, each with many changes, each bundling status updates and inbound
// messages that are processed independently.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         ChannelMetadata `json:"metadata"`
	Statuses         []StatusEvent   `json:"statuses"`
	Messages         []MessageEvent  `json:"messages"`
}

// ChannelMetadata identifies the business phone number the delivery belongs
// to. PhoneNumberID is what resolves the owning organization.
type ChannelMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// StatusEvent is one delivery-status update for a previously sent message.
type StatusEvent struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// MessageEvent is one inbound message from a contact.
type MessageEvent struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	Timestamp string      `json:"timestamp"`
	Type      string      `json:"type"`
	Text      MessageText `json:"text"`
}

type MessageText struct {
	Body string `json:"body"`
}
