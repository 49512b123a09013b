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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sharebridge/mailbridge/internal/models"
	"github.com/sharebridge/mailbridge/internal/render"
)

func newRenderCmd() *cobra.Command {
	var (
		file          string
		templateDir   string
		senderName    string
		transactionID string
		recipientRole string
		marketplace   render.Marketplace
	)

	cmd := &cobra.Command{
		Use:       "render <template>",
		Short:     "Render a notification template to stdout",
		Long:      `Renders the not-sent or new-message template with the message content read from stdin (or --file).`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{render.NotSent, render.NewMessage},
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			renderer, err := render.New(templateDir)
			if err != nil {
				return err
			}

			var data map[string]any
			switch args[0] {
			case render.NotSent:
				data = render.NotSentData(content, marketplace)
			case render.NewMessage:
				role := models.Role(recipientRole)
				if role != models.RoleCustomer && role != models.RoleProvider {
					return fmt.Errorf("--recipient-role must be %q or %q", models.RoleCustomer, models.RoleProvider)
				}
				data = render.NewMessageData(content, senderName, marketplace, transactionID, role)
			default:
				return fmt.Errorf("unknown template %q", args[0])
			}

			html, err := renderer.Render(args[0], data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), html)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "read the message content from a file instead of stdin")
	f.StringVar(&templateDir, "template-dir", os.Getenv("TEMPLATE_DIR"), "directory with template overrides")
	f.StringVar(&marketplace.Name, "marketplace-name", envOr("REACT_APP_MARKETPLACE_NAME", "Marketplace"), "marketplace name")
	f.StringVar(&marketplace.URL, "marketplace-url", envOr("REACT_APP_MARKETPLACE_ROOT_URL", "http://localhost:3000"), "marketplace root URL")
	f.StringVar(&senderName, "sender", "Sender", "sender display name (new-message)")
	f.StringVar(&transactionID, "transaction", "00000000-0000-0000-0000-000000000000", "transaction id (new-message)")
	f.StringVar(&recipientRole, "recipient-role", string(models.RoleProvider), "recipient role, customer or provider (new-message)")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
