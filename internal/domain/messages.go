// Package domain holds the wire-level payload shapes carried on the
// callbacks, emails and pushes queues.
package domain

import "github.com/google/uuid"

// Queue names the dispatcher subscribes to. The set is fixed and closed.
const (
	QueueCallbacks = "callbacks"
	QueueEmails    = "emails"
	QueuePushes    = "pushes"
)

// ErrorQueue returns the dead-letter routing key for a given source queue.
// The empty string means the queue is unknown and has no dead-letter sink.
func ErrorQueue(queue string) string {
	switch queue {
	case QueueCallbacks:
		return "error_callbacks"
	case QueueEmails:
		return "error_emails"
	case QueuePushes:
		return "error_pushes"
	default:
		return ""
	}
}

// Callback is delivered to an account's configured webhook URL, signed with
// the service's secp256k1 key.
type Callback struct {
	URL            string    `json:"url"`
	AmountCaptured string    `json:"amountCaptured"`
	Currency       string    `json:"currency"`
	Address        string    `json:"address"`
	AccountID      uuid.UUID `json:"accountId"`
}

// Email is a transactional message relayed through SendGrid.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// TransactionStatus mirrors the lifecycle states a Transaction may be in
// when it is pushed to a device.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionConfirmed TransactionStatus = "confirmed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is the payload embedded in a push notification.
type Transaction struct {
	ID             string            `json:"id"`
	From           []string          `json:"from"`
	To             string            `json:"to"`
	FromValue      string            `json:"fromValue"`
	FromCurrency   string            `json:"fromCurrency"`
	ToValue        string            `json:"toValue"`
	ToCurrency     string            `json:"toCurrency"`
	Fee            string            `json:"fee"`
	Status         TransactionStatus `json:"status"`
	BlockchainTxID *string           `json:"blockchainTxId,omitempty"`
	CreatedAt      string            `json:"createdAt"`
	UpdatedAt      string            `json:"updatedAt"`
}

// PushNotification is delivered to a single device via the push gateway.
type PushNotification struct {
	DeviceID    string      `json:"deviceId"`
	Transaction Transaction `json:"transaction"`
}
