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

// Package sharetribe is a trusted backend client for the Sharetribe
// Integration API. It covers the three calls the mail bridge needs:
// showing a transaction, showing a user and patching transaction metadata.
package sharetribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sharebridge/mailbridge/internal/models"
)

// DefaultBaseURL is the Integration API host.
const DefaultBaseURL = "https://flex-integ-api.sharetribe.com"

const (
	apiPrefix = "/v1/integration_api"
	tokenPath = "/v1/auth/token"
)

// OAuthConfig returns the client-credentials configuration for the
// Integration API. Use cfg.Client(ctx) to obtain an authenticated client.
func OAuthConfig(clientID, clientSecret, baseURL string) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     strings.TrimRight(baseURL, "/") + tokenPath,
		Scopes:       []string{"integ"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
}

// APIError is a single entry of an Integration API error payload.
type APIError struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
}

// StatusError reports an API call that returned no data, an error payload
// or a non-200 status.
type StatusError struct {
	Op     string
	Status int
	Errors []APIError
}

func (e *StatusError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Errors[0].Code)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
}

// NotFound reports whether the upstream resource does not exist.
func (e *StatusError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// StatusOf returns the upstream HTTP status carried by err, or 500 when err
// does not carry a usable failure status.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) && se.Status >= 300 {
		return se.Status
	}
	return http.StatusInternalServerError
}

// FirstStatus returns the first upstream failure status carried by errs,
// skipping nil errors and errors without a status. It returns 500 when none
// carries one.
func FirstStatus(errs ...error) int {
	for _, err := range errs {
		var se *StatusError
		if errors.As(err, &se) && se.Status >= 300 {
			return se.Status
		}
	}
	return http.StatusInternalServerError
}

// Client calls the Integration API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an Integration API client. The httpClient must already
// handle authentication (see OAuthConfig).
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// envelope is the top-level shape of every Integration API response.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []APIError      `json:"errors"`
}

// ShowTransaction fetches a transaction with its customer and provider relationships.
func (c *Client) ShowTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	params := url.Values{}
	params.Set("id", id)
	params.Set("include", "customer,provider")

	data, err := c.get(ctx, "transactions.show", "/transactions/show", params)
	if err != nil {
		return nil, err
	}

	tx, err := parseTransaction(data)
	if err != nil {
		return nil, fmt.Errorf("parse transaction %s: %w", id, err)
	}
	return tx, nil
}

// ShowUser fetches a single user.
func (c *Client) ShowUser(ctx context.Context, id string) (*models.Participant, error) {
	params := url.Values{}
	params.Set("id", id)

	data, err := c.get(ctx, "users.show", "/users/show", params)
	if err != nil {
		return nil, err
	}

	p, err := parseUser(data)
	if err != nil {
		return nil, fmt.Errorf("parse user %s: %w", id, err)
	}
	return p, nil
}

// UpdateMetadata patches top-level keys of a transaction's metadata. Keys
// not present in metadata are left as they are upstream.
func (c *Client) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"id":       id,
		"metadata": metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+apiPrefix+"/transactions/update_metadata", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, "transactions.updateMetadata")
	return err
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) (json.RawMessage, error) {
	u := fmt.Sprintf("%s%s%s?%s", c.baseURL, apiPrefix, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req, op)
}

// do sends req and returns the response data member.
func (c *Client) do(req *http.Request, op string) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}

	if resp.StatusCode != http.StatusOK || len(env.Errors) > 0 || isEmpty(env.Data) {
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Errors: env.Errors}
	}

	return env.Data, nil
}

func isEmpty(data json.RawMessage) bool {
	return len(data) == 0 || string(data) == "null"
}
