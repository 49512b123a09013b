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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sharebridge/mailbridge/internal/deliverylog"
)

func newDeliveriesCmd() *cobra.Command {
	var (
		databaseURL   string
		transactionID string
		since         time.Duration
		limit         int
		output        string
	)

	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "List recorded inbound deliveries",
		Long: `Lists rows from the inbound_deliveries table, either for one transaction
(--transaction) or everything received within --since.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}

			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, databaseURL)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer pool.Close()

			store, err := deliverylog.NewStore(ctx, pool)
			if err != nil {
				return err
			}

			var records []deliverylog.Record
			if transactionID != "" {
				records, err = store.ListByTransaction(ctx, transactionID)
			} else {
				records, err = store.ListSince(ctx, time.Now().Add(-since), limit)
			}
			if err != nil {
				return fmt.Errorf("list deliveries: %w", err)
			}

			return writeRecords(cmd.OutOrStdout(), output, records)
		},
	}

	f := cmd.Flags()
	f.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	f.StringVar(&transactionID, "transaction", "", "only deliveries routed to this transaction")
	f.DurationVar(&since, "since", 24*time.Hour, "how far back to list when no transaction is given")
	f.IntVar(&limit, "limit", 100, "maximum rows when listing by time")
	f.StringVarP(&output, "output", "o", "table", "output format: table, json, yaml")
	return cmd
}

// writeRecords prints records in the requested format.
func writeRecords(w io.Writer, format string, records []deliverylog.Record) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(records)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RECEIVED\tSENDER\tTRANSACTION\tSTAGE\tSTATUS\tERROR")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ReceivedAt.UTC().Format(time.RFC3339),
				r.Sender,
				dash(r.TransactionID),
				r.Stage,
				strconv.Itoa(r.Status),
				dash(r.Error),
			)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
