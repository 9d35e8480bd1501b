package model

type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "open"
	ConversationStatusClosed ConversationStatus = "closed"
)

const (
	SenderCustomer = "customer"
	SenderAgent    = "agent"
)

type ConversationItem struct {
	ConversationID string             `dynamodbav:"conversationId"`
	VisitorID      string             `dynamodbav:"visitorId"`
	Status         ConversationStatus `dynamodbav:"status"`
	CreatedAt      string             `dynamodbav:"createdAt"`
	UpdatedAt      string             `dynamodbav:"updatedAt"`
	LastMessageAt  string             `dynamodbav:"lastMessageAt"`
}

type MessageItem struct {
	ConversationID string `dynamodbav:"conversationId"`
	MessageID      string `dynamodbav:"messageId"`
	SenderType     string `dynamodbav:"senderType"`
	SenderID       string `dynamodbav:"senderId"`
	Body           string `dynamodbav:"body"`
	CreatedAt      string `dynamodbav:"createdAt"`
}

// VisitorItem is the customer record behind an anonymous visitor.
type VisitorItem struct {
	VisitorID  string `dynamodbav:"visitorId"`
	FullName   string `dynamodbav:"fullName"`
	Phone      string `dynamodbav:"phone,omitempty"`
	Email      string `dynamodbav:"email,omitempty"`
	Address    string `dynamodbav:"address,omitempty"`
	CreatedAt  string `dynamodbav:"createdAt"`
	LastSeenAt string `dynamodbav:"lastSeenAt"`
}
