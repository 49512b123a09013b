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

// Package inbound decodes inbound-email webhook submissions and holds the
// pure text stages of the bridge: transaction routing, sender address
// normalisation and quoted-reply sanitisation.
package inbound

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	_ "github.com/emersion/go-message/charset" // register non-UTF-8 charsets for raw MIME bodies
	gomail "github.com/emersion/go-message/mail"

	"github.com/sharebridge/mailbridge/internal/models"
)

// DefaultMaxMemory bounds the in-memory part of a multipart parse. File parts
// beyond it spill to temporary files, which are removed after decoding.
const DefaultMaxMemory = 32 << 20

var (
	// ErrMalformed means the request body could not be parsed as a form.
	ErrMalformed = errors.New("malformed inbound payload")

	// ErrMissingFields means from or text was absent after normalisation.
	ErrMissingFields = errors.New("missing required fields: from or text")
)

// Decode parses an inbound webhook request into an InboundEmail.
//
// Fields may arrive repeated depending on the webhook encoding; only the
// first value of each is used. Attachments are ignored. When the webhook is
// configured to post the raw MIME message in an "email" field instead of a
// parsed "text" field, the plain-text part and From header are taken from it.
func Decode(r *http.Request, maxMemory int64) (models.InboundEmail, error) {
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}

	values, err := formValues(r, maxMemory)
	if err != nil {
		return models.InboundEmail{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	email := models.InboundEmail{
		From: first(values["from"]),
		Text: first(values["text"]),
	}

	if email.Text == "" {
		if raw := first(values["email"]); raw != "" {
			rawFrom, rawText, err := parseRawMessage(raw)
			if err != nil {
				slog.Warn("failed to parse raw inbound message", "error", err)
			}
			if email.From == "" {
				email.From = rawFrom
			}
			email.Text = rawText
		}
	}

	if email.From == "" || email.Text == "" {
		slog.Warn("inbound payload missing required fields",
			"has_from", email.From != "",
			"has_text", email.Text != "",
			"field_keys", keys(values),
		)
		return email, ErrMissingFields
	}

	return email, nil
}

// formValues returns the non-file form values of a multipart or urlencoded body.
func formValues(r *http.Request, maxMemory int64) (map[string][]string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, err
	}
	defer r.MultipartForm.RemoveAll()

	if len(r.MultipartForm.File) > 0 {
		slog.Debug("ignoring inbound attachments", "count", len(r.MultipartForm.File))
	}

	return r.MultipartForm.Value, nil
}

func parseRawMessage(raw string) (from, text string, err error) {
	reader, err := gomail.CreateReader(strings.NewReader(raw))
	if err != nil && reader == nil {
		return "", "", fmt.Errorf("read raw message: %w", err)
	}
	defer reader.Close()

	from = strings.TrimSpace(reader.Header.Get("From"))

	for {
		part, perr := reader.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			return from, text, fmt.Errorf("read raw message part: %w", perr)
		}

		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		mimeType, _, _ := inline.ContentType()
		if mimeType != "" && !strings.EqualFold(mimeType, "text/plain") {
			continue
		}

		body, rerr := io.ReadAll(part.Body)
		if rerr != nil {
			return from, text, fmt.Errorf("read raw message body: %w", rerr)
		}
		text = string(body)
		break
	}

	return from, text, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func keys(values map[string][]string) []string {
	out := make([]string, 0, len(values))
	for k := range values {
		out = append(out, k)
	}
	return out
}
