package models

// InboundMessage is a text received from a participant on any transport.
type InboundMessage struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to,omitempty"`
	Body        string `json:"body"`
	ProfileName string `json:"profile_name,omitempty"`
	Time        int64  `json:"time"`
}
