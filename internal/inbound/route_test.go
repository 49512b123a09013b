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

import "testing"

const txID = "11111111-1111-1111-1111-111111111111"

// TestExtractTransactionID verifies both link conventions and their precedence.
func TestExtractTransactionID(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantID    string
		wantFound bool
	}{
		{
			name:      "sale link",
			text:      "reply\n> https://market.example.com/sale/" + txID + "/details",
			wantID:    txID,
			wantFound: true,
		},
		{
			name:      "order link",
			text:      "see https://market.example.com/order/abcdef12-3456-7890-abcd-ef1234567890",
			wantID:    "abcdef12-3456-7890-abcd-ef1234567890",
			wantFound: true,
		},
		{
			name:      "sale wins over earlier order",
			text:      "order/22222222-2222-2222-2222-222222222222 then sale/" + txID,
			wantID:    txID,
			wantFound: true,
		},
		{
			name:      "word characters accepted",
			text:      "sale/ZZZZZZZZ-____-1111-1111-111111111111",
			wantID:    "ZZZZZZZZ-____-1111-1111-111111111111",
			wantFound: true,
		},
		{
			name: "short group",
			text: "sale/1111111-1111-1111-1111-111111111111",
		},
		{
			name: "no link",
			text: "just saying hi",
		},
		{
			name: "empty",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, found := ExtractTransactionID(tt.text)
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

// TestNormalizeAddress verifies display-name wrappers are stripped.
func TestNormalizeAddress(t *testing.T) {
	tests := map[string]string{
		"Jane Doe <jane@example.com>":    "jane@example.com",
		"<jane@example.com>":             "jane@example.com",
		"jane@example.com":               "jane@example.com",
		`"Doe, Jane" <Jane@Example.com>`: "Jane@Example.com",
		"Jane <jane@example.com":         "jane@example.com",
	}

	for in, want := range tests {
		if got := NormalizeAddress(in); got != want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
