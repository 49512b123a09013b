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

package inbound

import (
	"regexp"
	"strings"
)

var (
	quotedLinePattern = regexp.MustCompile(`(?:^|\n)>.*`)
	ruleHeaderPattern = regexp.MustCompile(`-+\s.+\s-+`)
	footerPattern     = regexp.MustCompile(`\+.+@.+>$`)

	// A line starting the quote introduction opens the quoted block; anything
	// below it is the previous message.
	wroteLinePattern = regexp.MustCompile(`(?m)^On\s.*\swrote:(?s:.*)`)
)

// Sanitize strips quoted-reply artefacts from an email body.
//
// Steps run in a fixed order: quoted ">" lines, dashed rule headers, the
// "On <date> ... wrote:" line and the quote below it, a trailing
// "+tag@host>" footer, then surrounding whitespace.
//
// This is best effort. Clients that quote without ">" prefixes or localise
// the "On ... wrote:" line will leave quoted content behind, and text written
// below a quote introduction is dropped with it.
func Sanitize(text string) string {
	content := quotedLinePattern.ReplaceAllString(text, "")
	content = ruleHeaderPattern.ReplaceAllString(content, "")
	content = wroteLinePattern.ReplaceAllString(content, "")
	content = footerPattern.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}
