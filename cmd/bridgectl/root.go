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
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sharebridge/mailbridge/internal/inbound"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bridgectl",
		Short: "Mailbridge operator CLI",
		Long: `bridgectl runs the offline stages of the inbound email bridge.

Check which transaction a reply routes to, preview how a body is
sanitised, render notification templates, and list recorded deliveries.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newExtractCmd(),
		newSanitizeCmd(),
		newRenderCmd(),
		newDeliveriesCmd(),
	)
	return root
}

func newExtractCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print the transaction id an email body routes to",
		Long: `Reads an email body from stdin (or --file) and prints the transaction id
found in its sale/<uuid> or order/<uuid> link. Exits non-zero when the
body would take the not-sent path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			id, found := inbound.ExtractTransactionID(text)
			if !found {
				return fmt.Errorf("no transaction link found")
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the body from a file instead of stdin")
	return cmd
}

func newSanitizeCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "sanitize",
		Short: "Print an email body as it would be stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), inbound.Sanitize(text))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the body from a file instead of stdin")
	return cmd
}

// readInput returns the contents of file, or stdin when file is empty or "-".
func readInput(cmd *cobra.Command, file string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
