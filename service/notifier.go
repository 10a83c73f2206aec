package service

// Notification is the payload handed to the external notification
// fan-out. Delivery is fire-and-forget: a failed send must never roll
// back the order/payment transaction that produced it.
type Notification struct {
	RecipientID uint                   `json:"recipient_id"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Category    string                 `json:"category"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

type Notifier interface {
	Notify(n Notification)
}

// NopNotifier is used in tests and when the broker is disabled.
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}
