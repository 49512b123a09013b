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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sharebridge/mailbridge/internal/models"
)

type reference struct {
	Data *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

// apiTransaction represents the relevant fields of a transaction resource.
type apiTransaction struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Metadata map[string]json.RawMessage `json:"metadata"`
	} `json:"attributes"`
	Relationships struct {
		Customer reference `json:"customer"`
		Provider reference `json:"provider"`
	} `json:"relationships"`
}

// apiUser represents a user resource. Attributes are decoded twice: once
// into a map to keep every field for the sender snapshot, once typed.
type apiUser struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

type userAttributes struct {
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
	Profile   struct {
		DisplayName string `json:"displayName"`
	} `json:"profile"`
}

func parseTransaction(data json.RawMessage) (*models.Transaction, error) {
	var t apiTransaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	customer, provider := t.Relationships.Customer.Data, t.Relationships.Provider.Data
	if customer == nil || provider == nil {
		return nil, errors.New("transaction is missing customer or provider relationship")
	}

	metadata := t.Attributes.Metadata
	if metadata == nil {
		metadata = map[string]json.RawMessage{}
	}

	return &models.Transaction{
		ID:         t.ID,
		CustomerID: customer.ID,
		ProviderID: provider.ID,
		Metadata:   metadata,
	}, nil
}

func parseUser(data json.RawMessage) (*models.Participant, error) {
	var u apiUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	var attrs userAttributes
	var all map[string]any
	if len(u.Attributes) > 0 {
		if err := json.Unmarshal(u.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode user attributes: %w", err)
		}
		if err := json.Unmarshal(u.Attributes, &all); err != nil {
			return nil, fmt.Errorf("decode user attributes: %w", err)
		}
	}

	createdAt, err := time.Parse(time.RFC3339Nano, attrs.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("user %s createdAt: %w", u.ID, err)
	}

	return &models.Participant{
		ID:          u.ID,
		Type:        u.Type,
		Email:       attrs.Email,
		DisplayName: attrs.Profile.DisplayName,
		CreatedAt:   createdAt,
		Attributes:  all,
	}, nil
}
