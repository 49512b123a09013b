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

// Reply links embedded in notification emails carry the transaction id in
// the storefront inbox path. Providers see sale/<id>, customers order/<id>.
var (
	saleLinkPattern  = regexp.MustCompile(`sale/(\w{8}-\w{4}-\w{4}-\w{4}-\w{12})`)
	orderLinkPattern = regexp.MustCompile(`order/(\w{8}-\w{4}-\w{4}-\w{4}-\w{12})`)
)

// ExtractTransactionID finds the transaction id in an email body.
// A sale link takes precedence over an order link anywhere in the text.
func ExtractTransactionID(text string) (string, bool) {
	for _, p := range []*regexp.Regexp{saleLinkPattern, orderLinkPattern} {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// NormalizeAddress strips a "Display Name <addr>" wrapper from a From value.
func NormalizeAddress(from string) string {
	_, rest, ok := strings.Cut(from, "<")
	if !ok {
		return from
	}
	addr, _, _ := strings.Cut(rest, ">")
	return addr
}
