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

// Package mailer sends transactional notification emails through SendGrid.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// DefaultHost is the SendGrid API host.
const DefaultHost = "https://api.sendgrid.com"

const sendEndpoint = "/v3/mail/send"

// Email is a single outbound HTML notification.
type Email struct {
	To          string
	FromName    string
	FromAddress string
	ReplyTo     string
	Subject     string
	HTML        string
}

// FromHeader renders the sender as it appears in the From header.
func (e Email) FromHeader() string {
	if e.FromName == "" {
		return e.FromAddress
	}
	return fmt.Sprintf("%s <%s>", e.FromName, e.FromAddress)
}

// RejectedError reports a send the provider answered with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("sendgrid rejected message: HTTP %d", e.StatusCode)
}

// SendGrid delivers email through the SendGrid v3 mail send API.
type SendGrid struct {
	apiKey string
	host   string
}

// NewSendGrid creates a SendGrid sender. An empty host uses DefaultHost.
func NewSendGrid(apiKey, host string) *SendGrid {
	if host == "" {
		host = DefaultHost
	}
	return &SendGrid{apiKey: apiKey, host: host}
}

// Send delivers msg and returns the provider status code.
func (s *SendGrid) Send(ctx context.Context, msg Email) (int, error) {
	if msg.To == "" {
		return 0, errors.New("no recipient specified")
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.FromName, msg.FromAddress))
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", msg.HTML))

	req := sendgrid.GetRequest(s.apiKey, sendEndpoint, s.host)
	req.Method = rest.Post
	client := &sendgrid.Client{Request: req}

	resp, err := client.SendWithContext(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("sendgrid send: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &RejectedError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	slog.Debug("sendgrid accepted message",
		"to", msg.To,
		"status", resp.StatusCode,
	)
	return resp.StatusCode, nil
}
