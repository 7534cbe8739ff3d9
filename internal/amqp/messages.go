package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseConfirmedMessage announces that an addExpense transaction was
// confirmed on chain. Origin identifies the publishing instance so it can
// skip its own broadcasts.
type ExpenseConfirmedMessage struct {
	TxHash    string    `json:"tx_hash"`
	Item      string    `json:"item"`
	Amount    string    `json:"amount"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseConfirmedMessage creates a confirmation message stamped now
func NewExpenseConfirmedMessage(txHash, item, amount, origin string) *ExpenseConfirmedMessage {
	return &ExpenseConfirmedMessage{
		TxHash:    txHash,
		Item:      item,
		Amount:    amount,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseConfirmedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseConfirmedMessageFromJSON creates a message from JSON bytes
func ExpenseConfirmedMessageFromJSON(data []byte) (*ExpenseConfirmedMessage, error) {
	var msg ExpenseConfirmedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
