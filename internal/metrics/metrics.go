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

// Package metrics defines the Prometheus metrics exported by the mail bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InboundRequests counts processed webhook calls by response status and
	// the pipeline stage that decided it.
	InboundRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbridge_inbound_requests_total",
			Help: "Total number of inbound email webhook requests",
		},
		[]string{"status", "stage"},
	)

	InboundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailbridge_inbound_duration_seconds",
			Help:    "Duration of inbound email processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Notifications counts notification sends by template and result.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbridge_notifications_total",
			Help: "Total number of notification emails attempted",
		},
		[]string{"template", "result"},
	)

	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailbridge_messages_stored_total",
			Help: "Total number of messages appended to transaction metadata",
		},
	)

	DeliveryLogErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailbridge_delivery_log_errors_total",
			Help: "Total number of delivery log writes that failed",
		},
	)
)
