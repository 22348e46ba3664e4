// Package unraid talks to the Unraid GraphQL API. The daemon uses it to raise
// a WebGUI notification when a disk refuses to spin down.
package unraid

import "context"

// GraphQLError is one entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
}

// Client executes GraphQL documents.
type Client interface {
	Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error)
}

// Importance levels accepted by createNotification.
const (
	ImportanceInfo    = "INFO"
	ImportanceWarning = "WARNING"
	ImportanceAlert   = "ALERT"
)

// Notification is the input of a createNotification mutation.
type Notification struct {
	Title       string `json:"title"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Importance  string `json:"importance"`
}
