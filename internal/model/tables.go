package model

const (
	IdentityTable = "WebChatIdentity"
)

// IdentityItem is one client-local key kept in DynamoDB.
type IdentityItem struct {
	Key       string `dynamodbav:"key"`
	Value     string `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}
