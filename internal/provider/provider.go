package provider

import "context"

// TriggerRequest is the outbound payload handed to the delivery provider.
// TransactionID is the dispatch record's own id and serves as the correlation
// key for asynchronous delivery callbacks.
type TriggerRequest struct {
	Workflow      string         `json:"workflow"`
	TransactionID string         `json:"transactionId"`
	Recipient     string         `json:"recipient"`
	Payload       map[string]any `json:"payload"`
}

// TriggerResponse is the provider's structured acknowledgement.
type TriggerResponse struct {
	Acknowledged  bool     `json:"acknowledged"`
	Status        string   `json:"status"`
	TransactionID string   `json:"transactionId"`
	Errors        []string `json:"errors,omitempty"`
}

// TriggerProvider is the outbound delivery port. A single synchronous attempt
// is made per call; retry policy, if any, belongs to the caller's layer.
type TriggerProvider interface {
	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResponse, error)
}
