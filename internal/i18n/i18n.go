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

// Package i18n provides the translation lookup used for email subjects and
// sender names.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.json
var translationsFS embed.FS

// Translator resolves message keys for a single locale.
type Translator struct {
	localizer *goi18n.Localizer
}

// New loads the built-in translations plus any extra message files and
// returns a translator for locale. Unknown locales fall back to English.
func New(locale string, extraFiles ...string) (*Translator, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	paths, err := fs.Glob(translationsFS, "translations/*.json")
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	for _, p := range paths {
		if _, err := bundle.LoadMessageFileFS(translationsFS, p); err != nil {
			return nil, fmt.Errorf("load translation %s: %w", p, err)
		}
	}

	for _, p := range extraFiles {
		if _, err := bundle.LoadMessageFile(p); err != nil {
			return nil, fmt.Errorf("load translation %s: %w", p, err)
		}
	}

	return &Translator{localizer: goi18n.NewLocalizer(bundle, locale)}, nil
}

// T returns the translation of key, or defaultText when the key is not
// translated. vars are substituted into {{.name}} placeholders.
func (t *Translator) T(key, defaultText string, vars map[string]any) string {
	out, err := t.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:      key,
		DefaultMessage: &goi18n.Message{ID: key, Other: defaultText},
		TemplateData:   vars,
	})
	if err != nil {
		slog.Debug("translation fallback", "key", key, "error", err)
		if out == "" {
			return defaultText
		}
	}
	return out
}
