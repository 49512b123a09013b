// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package models defines the data structures shared across the mail bridge.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType is the discriminator stored on every bridged message.
const MessageType = "message"

// isoLayout matches JavaScript's Date.prototype.toISOString output, which the
// storefront already parses for messages stored in transaction metadata.
const isoLayout = "2006-01-02T15:04:05.000Z"

// InboundEmail is a decoded inbound webhook submission.
type InboundEmail struct {
	From string
	Text string
}

// Role identifies which side of a transaction a participant is on.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

// Counterparty returns the opposite role.
func (r Role) Counterparty() Role {
	if r == RoleCustomer {
		return RoleProvider
	}
	return RoleCustomer
}

// Transaction is the subset of a marketplace transaction the bridge reads.
type Transaction struct {
	ID         string
	CustomerID string
	ProviderID string
	Metadata   map[string]json.RawMessage
}

// Emails returns the messages already stored under metadata.emails.
// Entries are kept as raw JSON so earlier records round-trip untouched.
func (t *Transaction) Emails() ([]json.RawMessage, error) {
	raw, ok := t.Metadata["emails"]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return []json.RawMessage{}, nil
	}

	var emails []json.RawMessage
	if err := json.Unmarshal(raw, &emails); err != nil {
		return nil, fmt.Errorf("decode metadata.emails: %w", err)
	}
	if emails == nil {
		emails = []json.RawMessage{}
	}
	return emails, nil
}

// Participant is a customer or provider on a transaction.
type Participant struct {
	ID          string
	Type        string
	Email       string
	DisplayName string
	CreatedAt   time.Time

	// Attributes holds the full upstream attribute object.
	Attributes map[string]any
}

// MessageSender is a denormalised snapshot of the participant who wrote a message.
type MessageSender struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// MessageAttributes carries the message body and processing time.
type MessageAttributes struct {
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// Message is the record appended to transaction metadata.emails.
type Message struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Sender     MessageSender     `json:"sender"`
	Attributes MessageAttributes `json:"attributes"`
}

// NewMessage builds a message from the sender snapshot and sanitized content.
func NewMessage(id string, sender Participant, role Role, content string, now time.Time) Message {
	return Message{
		ID:     id,
		Type:   MessageType,
		Sender: SenderSnapshot(sender, role),
		Attributes: MessageAttributes{
			Content:   content,
			CreatedAt: ISOTime(now),
		},
	}
}

// SenderSnapshot copies the participant attributes and normalises createdAt.
// The snapshot type is the participant's role on the transaction.
func SenderSnapshot(p Participant, role Role) MessageSender {
	attrs := make(map[string]any, len(p.Attributes)+1)
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	attrs["createdAt"] = ISOTime(p.CreatedAt)

	return MessageSender{
		ID:         p.ID,
		Type:       string(role),
		Attributes: attrs,
	}
}

// ISOTime formats t as UTC with millisecond precision.
func ISOTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
