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

// Package render compiles the notification email templates. Templates are
// Handlebars, so marketplace operators can adapt the hosted email templates
// they already maintain.
package render

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/aymerick/raymond"

	"github.com/sharebridge/mailbridge/internal/models"
)

// Template names.
const (
	NotSent    = "not-sent"
	NewMessage = "new-message"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Marketplace identifies the marketplace in rendered emails.
type Marketplace struct {
	Name string
	URL  string
}

// Renderer holds the compiled templates. It is safe for concurrent use;
// templates are parsed once and never modified afterwards.
type Renderer struct {
	templates map[string]*raymond.Template
}

// New compiles the built-in templates. When dir is non-empty, a file
// <dir>/<name>.html replaces the built-in template of the same name.
func New(dir string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*raymond.Template, 2)}

	for _, name := range []string{NotSent, NewMessage} {
		source, origin, err := loadSource(dir, name)
		if err != nil {
			return nil, err
		}

		tpl, err := raymond.Parse(source)
		if err != nil {
			return nil, fmt.Errorf("parse template %s (%s): %w", name, origin, err)
		}
		tpl.RegisterHelper("url-encode", urlEncode)

		r.templates[name] = tpl
		slog.Debug("template compiled", "template", name, "source", origin)
	}

	return r, nil
}

func loadSource(dir, name string) (source, origin string, err error) {
	file := name + ".html"

	if dir != "" {
		path := filepath.Join(dir, file)
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("read template %s: %w", path, err)
		}
	}

	data, err := templatesFS.ReadFile("templates/" + file)
	if err != nil {
		return "", "", fmt.Errorf("read built-in template %s: %w", file, err)
	}
	return string(data), "built-in", nil
}

// Render executes the named template. Interpolated values are HTML-escaped.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}

	html, err := tpl.Exec(data)
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return html, nil
}

// urlEncode query-escapes a value for use inside a generated link.
func urlEncode(value interface{}) string {
	return url.QueryEscape(raymond.Str(value))
}

// NotSentData is the context for the not-sent template.
func NotSentData(content string, m Marketplace) map[string]any {
	return map[string]any{
		"message": map[string]any{
			"content":     content,
			"marketplace": marketplaceData(m),
		},
	}
}

// NewMessageData is the context for the new-message template.
// transaction.path is the storefront inbox segment the recipient uses for
// this transaction, so links in the email and quoted replies route back.
func NewMessageData(content, senderName string, m Marketplace, transactionID string, recipient models.Role) map[string]any {
	return map[string]any{
		"message": map[string]any{
			"content": content,
			"sender": map[string]any{
				"display-name": senderName,
			},
			"marketplace": marketplaceData(m),
			"transaction": map[string]any{
				"id":   transactionID,
				"path": InboxPath(recipient),
			},
			"recipient-role": string(recipient),
		},
	}
}

// InboxPath returns the storefront path segment a participant uses to open
// a transaction: providers see sales, customers see orders.
func InboxPath(role models.Role) string {
	if role == models.RoleProvider {
		return "sale"
	}
	return "order"
}

func marketplaceData(m Marketplace) map[string]any {
	return map[string]any{
		"name": m.Name,
		"url":  m.URL,
	}
}
