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

package sharetribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const (
	txID       = "11111111-1111-1111-1111-111111111111"
	customerID = "22222222-2222-2222-2222-222222222222"
	providerID = "33333333-3333-3333-3333-333333333333"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.Client(), server.URL)
}

// TestShowTransaction verifies the request shape and relationship parsing.
func TestShowTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/integration_api/transactions/show" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != txID {
			t.Errorf("id = %s", got)
		}
		if got := r.URL.Query().Get("include"); got != "customer,provider" {
			t.Errorf("include = %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": {
				"id": "` + txID + `",
				"type": "transaction",
				"attributes": {"metadata": {"emails": [{"id": "old"}], "note": "keep"}},
				"relationships": {
					"customer": {"data": {"id": "` + customerID + `", "type": "user"}},
					"provider": {"data": {"id": "` + providerID + `", "type": "user"}}
				}
			}
		}`))
	})

	tx, err := client.ShowTransaction(context.Background(), txID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.ID != txID || tx.CustomerID != customerID || tx.ProviderID != providerID {
		t.Errorf("transaction = %+v", tx)
	}

	emails, err := tx.Emails()
	if err != nil {
		t.Fatalf("emails: %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("emails = %d, want 1", len(emails))
	}
}

// TestShowTransaction_Failures verifies each failure shape maps to a StatusError.
func TestShowTransaction_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{
			name:       "not found",
			status:     http.StatusNotFound,
			body:       `{"errors":[{"id":"e1","status":404,"code":"not-found","title":"Not found"}]}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "forbidden without body",
			status:     http.StatusForbidden,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "errors payload with 200",
			status:     http.StatusOK,
			body:       `{"errors":[{"status":500,"code":"unknown"}]}`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "no data",
			status:     http.StatusOK,
			body:       `{"data":null}`,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.ShowTransaction(context.Background(), txID)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StatusError", err)
			}
			if got := StatusOf(err); got != tt.wantStatus {
				t.Errorf("StatusOf = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

// TestShowTransaction_MissingRelationships verifies incomplete transactions are rejected.
func TestShowTransaction_MissingRelationships(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"` + txID + `","type":"transaction","attributes":{}}}`))
	})

	_, err := client.ShowTransaction(context.Background(), txID)
	if err == nil {
		t.Fatal("expected error for missing relationships")
	}
	if got := StatusOf(err); got != http.StatusInternalServerError {
		t.Errorf("StatusOf = %d, want 500", got)
	}
}

// TestShowUser verifies attribute parsing keeps the full attribute object.
func TestShowUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/integration_api/users/show" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"data": {
				"id": "` + customerID + `",
				"type": "user",
				"attributes": {
					"email": "jane@example.com",
					"createdAt": "2024-03-01T10:20:30.123Z",
					"banned": false,
					"profile": {"displayName": "Jane D", "abbreviatedName": "JD"}
				}
			}
		}`))
	})

	p, err := client.ShowUser(context.Background(), customerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Email != "jane@example.com" || p.DisplayName != "Jane D" || p.Type != "user" {
		t.Errorf("participant = %+v", p)
	}
	want := time.Date(2024, 3, 1, 10, 20, 30, 123000000, time.UTC)
	if !p.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, want)
	}
	if _, ok := p.Attributes["banned"]; !ok {
		t.Error("expected full attribute object to be kept")
	}
}

// TestUpdateMetadata verifies the request body of a metadata patch.
func TestUpdateMetadata(t *testing.T) {
	var got struct {
		ID       string                     `json:"id"`
		Metadata map[string]json.RawMessage `json:"metadata"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/v1/integration_api/transactions/update_metadata" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"data":{"id":"` + txID + `","type":"transaction"}}`))
	})

	err := client.UpdateMetadata(context.Background(), txID, map[string]any{
		"emails": []any{map[string]string{"id": "m1"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != txID {
		t.Errorf("id = %s", got.ID)
	}
	if string(got.Metadata["emails"]) != `[{"id":"m1"}]` {
		t.Errorf("emails = %s", got.Metadata["emails"])
	}
}

// TestUpdateMetadata_Failure verifies a rejected patch is reported.
func TestUpdateMetadata_Failure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := client.UpdateMetadata(context.Background(), txID, map[string]any{"emails": []any{}})
	if got := StatusOf(err); got != http.StatusConflict {
		t.Errorf("StatusOf = %d, want 409", got)
	}
}

// TestStatusOf_TransportError verifies errors without a status default to 500.
func TestStatusOf_TransportError(t *testing.T) {
	if got := StatusOf(errors.New("dial tcp: refused")); got != http.StatusInternalServerError {
		t.Errorf("StatusOf = %d, want 500", got)
	}
}

// TestFirstStatus verifies the customer status is preferred over the provider's.
func TestFirstStatus(t *testing.T) {
	notFound := &StatusError{Op: "users.show", Status: http.StatusNotFound}
	forbidden := &StatusError{Op: "users.show", Status: http.StatusForbidden}
	noStatus := &StatusError{Op: "users.show", Status: http.StatusOK}

	tests := []struct {
		name     string
		customer error
		provider error
		want     int
	}{
		{"customer failed", notFound, nil, http.StatusNotFound},
		{"provider failed", nil, forbidden, http.StatusForbidden},
		{"both failed", notFound, forbidden, http.StatusNotFound},
		{"customer without status", noStatus, forbidden, http.StatusForbidden},
		{"transport errors", errors.New("boom"), errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstStatus(tt.customer, tt.provider); got != tt.want {
				t.Errorf("FirstStatus = %d, want %d", got, tt.want)
			}
		})
	}
}
