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

// Package bridge turns an inbound email into a transaction message.
//
// Stages run strictly in order for one email: route the text to a
// transaction, fetch the transaction and both participants, authenticate the
// sender, sanitize the body, append the message to transaction metadata and
// notify the counterparty. Every external failure ends processing with an
// HTTP status; nothing is retried.
//
// Appending is a read-modify-write of metadata.emails with no version check,
// so concurrent emails for one transaction can lose a message unless a
// Locker is configured. A webhook retry after a persist or notify failure can
// store or send the same message twice.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sharebridge/mailbridge/internal/deliverylog"
	"github.com/sharebridge/mailbridge/internal/inbound"
	"github.com/sharebridge/mailbridge/internal/lock"
	"github.com/sharebridge/mailbridge/internal/mailer"
	"github.com/sharebridge/mailbridge/internal/metrics"
	"github.com/sharebridge/mailbridge/internal/models"
	"github.com/sharebridge/mailbridge/internal/render"
	"github.com/sharebridge/mailbridge/internal/sharetribe"
)

// API is the subset of the marketplace backend the bridge calls.
type API interface {
	ShowTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ShowUser(ctx context.Context, id string) (*models.Participant, error)
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error
}

// Mailer sends a notification email.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Email) (int, error)
}

// Renderer renders a named notification template.
type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

// Translator looks up localised strings.
type Translator interface {
	T(key, defaultText string, vars map[string]any) string
}

// Locker serialises metadata updates per transaction.
type Locker interface {
	Acquire(ctx context.Context, transactionID string) (lock.Release, error)
}

// DeliveryLog records processed deliveries.
type DeliveryLog interface {
	Record(ctx context.Context, r deliverylog.Record) error
}

// Stage names the pipeline step that decided an outcome.
type Stage string

const (
	StageNotSent     Stage = "not_sent"
	StageLock        Stage = "lock"
	StageTransaction Stage = "fetch_transaction"
	StageUsers       Stage = "fetch_users"
	StageAuth        Stage = "authenticate"
	StagePersist     Stage = "persist"
	StageNotify      Stage = "notify"
	StageDone        Stage = "done"
)

// Outcome is the result of processing one inbound email.
type Outcome struct {
	Status        int
	Stage         Stage
	TransactionID string
	MessageID     string
	Recipient     string
	Err           error
}

// Config holds the bridge dependencies.
type Config struct {
	API        API
	Mailer     Mailer
	Renderer   Renderer
	Translator Translator

	// Locker and DeliveryLog are optional.
	Locker      Locker
	DeliveryLog DeliveryLog

	Marketplace render.Marketplace
	FromAddress string
	ReplyTo     string

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// Bridge processes inbound emails.
type Bridge struct {
	api        API
	mailer     Mailer
	renderer   Renderer
	translator Translator
	locker     Locker
	log        DeliveryLog

	marketplace render.Marketplace
	fromAddress string
	replyTo     string

	now   func() time.Time
	newID func() string
}

// New creates a bridge from cfg.
func New(cfg Config) *Bridge {
	b := &Bridge{
		api:         cfg.API,
		mailer:      cfg.Mailer,
		renderer:    cfg.Renderer,
		translator:  cfg.Translator,
		locker:      cfg.Locker,
		log:         cfg.DeliveryLog,
		marketplace: cfg.Marketplace,
		fromAddress: cfg.FromAddress,
		replyTo:     cfg.ReplyTo,
		now:         cfg.Now,
		newID:       cfg.NewID,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newID == nil {
		b.newID = func() string { return uuid.New().String() }
	}
	return b
}

// stored is what a successful persist hands to the notify stage.
type stored struct {
	message   models.Message
	sender    *models.Participant
	recipient *models.Participant
	role      models.Role
}

// Process runs the pipeline for one decoded email.
func (b *Bridge) Process(ctx context.Context, email models.InboundEmail) (out Outcome) {
	start := b.now()
	defer func() { b.finish(ctx, email, start, out) }()

	id, found := inbound.ExtractTransactionID(email.Text)
	slog.Info("extracted transaction id", "has_id", found, "transaction_id", id)

	if !found {
		b.sendNotSent(ctx, email)
		return Outcome{Status: http.StatusOK, Stage: StageNotSent}
	}

	s, failed := b.store(ctx, id, email)
	if s == nil {
		return failed
	}

	return b.notify(ctx, id, s)
}

// store covers the fetch, authenticate and persist stages. When a Locker is
// configured it is held from the transaction fetch until the update returns.
func (b *Bridge) store(ctx context.Context, id string, email models.InboundEmail) (*stored, Outcome) {
	fail := func(status int, stage Stage, err error) (*stored, Outcome) {
		return nil, Outcome{Status: status, Stage: stage, TransactionID: id, Err: err}
	}

	if b.locker != nil {
		release, err := b.locker.Acquire(ctx, id)
		if err != nil {
			slog.Error("failed to lock transaction", "transaction_id", id, "error", err)
			return fail(http.StatusInternalServerError, StageLock, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("failed to release transaction lock", "transaction_id", id, "error", err)
			}
		}()
	}

	tx, err := b.api.ShowTransaction(ctx, id)
	if err != nil {
		status := sharetribe.StatusOf(err)
		slog.Error("failed to fetch transaction", "transaction_id", id, "status", status, "error", err)
		return fail(status, StageTransaction, err)
	}

	customer, customerErr := b.api.ShowUser(ctx, tx.CustomerID)
	provider, providerErr := b.api.ShowUser(ctx, tx.ProviderID)
	if customerErr != nil || providerErr != nil {
		status := sharetribe.FirstStatus(customerErr, providerErr)
		slog.Error("failed to fetch users",
			"transaction_id", id,
			"status", status,
			"customer_error", errString(customerErr),
			"provider_error", errString(providerErr),
		)
		return fail(status, StageUsers, errors.Join(customerErr, providerErr))
	}

	address := inbound.NormalizeAddress(email.From)
	// Participants without an email on record never match, nor does an
	// empty sender address.
	var s stored
	switch {
	case address == "":
		slog.Warn("sender address empty", "transaction_id", id, "from", email.From)
		return fail(http.StatusForbidden, StageAuth, errors.New("sender address is empty"))
	case address == customer.Email:
		s = stored{sender: customer, recipient: provider, role: models.RoleCustomer}
	case address == provider.Email:
		s = stored{sender: provider, recipient: customer, role: models.RoleProvider}
	default:
		slog.Warn("sender not part of transaction", "transaction_id", id, "from", address)
		return fail(http.StatusForbidden, StageAuth, fmt.Errorf("sender %q is not a participant", address))
	}

	content := inbound.Sanitize(email.Text)
	s.message = models.NewMessage(b.newID(), *s.sender, s.role, content, b.now())

	if err := b.appendMessage(ctx, tx, s.message); err != nil {
		slog.Error("failed to update transaction metadata", "transaction_id", id, "error", err)
		return fail(http.StatusInternalServerError, StagePersist, err)
	}

	metrics.MessagesStored.Inc()
	slog.Info("stored message in transaction metadata", "transaction_id", id, "message_id", s.message.ID)
	return &s, Outcome{}
}

// appendMessage replaces metadata.emails with the existing entries plus msg.
func (b *Bridge) appendMessage(ctx context.Context, tx *models.Transaction, msg models.Message) error {
	emails, err := tx.Emails()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return b.api.UpdateMetadata(ctx, tx.ID, map[string]any{
		"emails": append(emails, raw),
	})
}

// notify sends the new-message email to the counterparty.
func (b *Bridge) notify(ctx context.Context, id string, s *stored) Outcome {
	out := Outcome{
		TransactionID: id,
		MessageID:     s.message.ID,
		Recipient:     s.recipient.Email,
		Stage:         StageNotify,
	}
	senderName := s.sender.DisplayName
	recipientRole := s.role.Counterparty()

	html, err := b.renderer.Render(render.NewMessage, render.NewMessageData(
		s.message.Attributes.Content, senderName, b.marketplace, id, recipientRole,
	))
	if err != nil {
		slog.Error("failed to render new-message email", "transaction_id", id, "error", err)
		metrics.Notifications.WithLabelValues(render.NewMessage, "error").Inc()
		out.Status, out.Err = http.StatusInternalServerError, err
		return out
	}

	msg := mailer.Email{
		To:          s.recipient.Email,
		FromName:    fmt.Sprintf("%s %s %s", senderName, b.translator.T("General.Via", "via", nil), b.marketplace.Name),
		FromAddress: b.fromAddress,
		ReplyTo:     b.replyTo,
		Subject: b.translator.T("NewMessage.Subject", "{{.senderName}} has sent you a new message",
			map[string]any{"senderName": senderName}),
		HTML: html,
	}

	status, err := b.mailer.Send(ctx, msg)
	if err != nil {
		slog.Error("failed to send new-message email", "to", msg.To, "transaction_id", id, "error", err)
		metrics.Notifications.WithLabelValues(render.NewMessage, "error").Inc()
		out.Status, out.Err = http.StatusInternalServerError, err
		return out
	}
	metrics.Notifications.WithLabelValues(render.NewMessage, "sent").Inc()

	slog.Info("processed incoming email",
		"provider_status", status,
		"from", s.sender.Email,
		"to", msg.To,
		"transaction_id", id,
	)

	out.Status, out.Stage = http.StatusOK, StageDone
	return out
}

// sendNotSent tells the author their email could not be routed. Failures
// are logged only.
func (b *Bridge) sendNotSent(ctx context.Context, email models.InboundEmail) {
	to := inbound.NormalizeAddress(email.From)

	html, err := b.renderer.Render(render.NotSent, render.NotSentData(email.Text, b.marketplace))
	if err != nil {
		slog.Error("failed to render not-sent email", "to", to, "error", err)
		metrics.Notifications.WithLabelValues(render.NotSent, "error").Inc()
		return
	}

	status, err := b.mailer.Send(ctx, mailer.Email{
		To:          to,
		FromAddress: b.fromAddress,
		ReplyTo:     b.replyTo,
		Subject:     b.translator.T("NotSent.Subject", "Your message has not been sent!", nil),
		HTML:        html,
	})
	if err != nil {
		slog.Error("failed to send not-sent notification", "to", to, "error", err)
		metrics.Notifications.WithLabelValues(render.NotSent, "error").Inc()
		return
	}

	metrics.Notifications.WithLabelValues(render.NotSent, "sent").Inc()
	slog.Info("not-sent notification dispatched", "to", to, "provider_status", status)
}

// finish records metrics and the delivery log entry for an outcome.
func (b *Bridge) finish(ctx context.Context, email models.InboundEmail, start time.Time, out Outcome) {
	metrics.InboundRequests.WithLabelValues(strconv.Itoa(out.Status), string(out.Stage)).Inc()
	metrics.InboundDuration.Observe(b.now().Sub(start).Seconds())

	if b.log == nil {
		return
	}

	rec := deliverylog.Record{
		ID:            b.newID(),
		ReceivedAt:    start,
		Sender:        inbound.NormalizeAddress(email.From),
		TransactionID: out.TransactionID,
		MessageID:     out.MessageID,
		Stage:         string(out.Stage),
		Status:        out.Status,
		Error:         errString(out.Err),
	}
	if err := b.log.Record(context.WithoutCancel(ctx), rec); err != nil {
		metrics.DeliveryLogErrors.Inc()
		slog.Warn("failed to record delivery", "transaction_id", out.TransactionID, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
