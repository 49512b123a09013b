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

package webhook

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sharebridge/mailbridge/internal/bridge"
	"github.com/sharebridge/mailbridge/internal/models"
)

// fakeProcessor records the emails it is given and returns a fixed outcome.
type fakeProcessor struct {
	outcome bridge.Outcome
	got     []models.InboundEmail
}

func (p *fakeProcessor) Process(_ context.Context, email models.InboundEmail) bridge.Outcome {
	p.got = append(p.got, email)
	return p.outcome
}

func formRequest(t *testing.T, path string, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// TestServeIncoming_Processes verifies decoded fields reach the bridge and
// its status is returned with an empty body.
func TestServeIncoming_Processes(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"stored", http.StatusOK},
		{"forbidden", http.StatusForbidden},
		{"upstream not found", http.StatusNotFound},
		{"internal", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{outcome: bridge.Outcome{Status: tt.status}}
			h := NewHandler(p, 0)

			req := formRequest(t, IncomingPath, map[string]string{
				"from":    "Jane <jane@example.com>",
				"text":    "hello",
				"subject": "Re: booking",
			})
			rr := httptest.NewRecorder()

			h.ServeIncoming(rr, req)

			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if rr.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rr.Body.String())
			}
			if len(p.got) != 1 {
				t.Fatalf("processor called %d times, want 1", len(p.got))
			}
			if p.got[0].From != "Jane <jane@example.com>" || p.got[0].Text != "hello" {
				t.Errorf("processed email = %+v", p.got[0])
			}
		})
	}
}

// TestServeIncoming_MissingFields verifies a 400 JSON error and that the
// bridge is never invoked.
func TestServeIncoming_MissingFields(t *testing.T) {
	for _, fields := range []map[string]string{
		{"from": "jane@example.com"},
		{"text": "hello"},
		{"subject": "only a subject"},
	} {
		p := &fakeProcessor{outcome: bridge.Outcome{Status: http.StatusOK}}
		h := NewHandler(p, 0)
		rr := httptest.NewRecorder()

		h.ServeIncoming(rr, formRequest(t, IncomingPath, fields))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("fields %v: status = %d, want 400", fields, rr.Code)
		}
		want := `{"error":"Missing required fields: from or text"}`
		if got := strings.TrimSpace(rr.Body.String()); got != want {
			t.Errorf("fields %v: body = %q, want %q", fields, got, want)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if len(p.got) != 0 {
			t.Errorf("fields %v: processor called %d times, want 0", fields, len(p.got))
		}
	}
}

// TestServeIncoming_Malformed verifies unparseable bodies get an empty 400.
func TestServeIncoming_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"bad url escape", "application/x-www-form-urlencoded", "from=%zz&text=hi"},
		{"missing boundary", "multipart/form-data", "--x\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{}
			h := NewHandler(p, 0)

			req := httptest.NewRequest(http.MethodPost, IncomingPath, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			h.ServeIncoming(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if rr.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rr.Body.String())
			}
			if len(p.got) != 0 {
				t.Error("processor should not be called")
			}
		})
	}
}

// TestServeIncoming_BodyTooLarge verifies the body cap rejects oversized posts.
func TestServeIncoming_BodyTooLarge(t *testing.T) {
	p := &fakeProcessor{}
	h := NewHandler(p, 64)

	req := formRequest(t, IncomingPath, map[string]string{
		"from": "jane@example.com",
		"text": strings.Repeat("a", 1024),
	})
	rr := httptest.NewRecorder()

	h.ServeIncoming(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if len(p.got) != 0 {
		t.Error("processor should not be called")
	}
}

// TestServeIncoming_MethodNotAllowed verifies only POST is accepted.
func TestServeIncoming_MethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, 0)

	req := httptest.NewRequest(http.MethodGet, IncomingPath, nil)
	rr := httptest.NewRecorder()

	h.ServeIncoming(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q, want POST", allow)
	}
}

// TestRoutes verifies both mount points reach the handler.
func TestRoutes(t *testing.T) {
	p := &fakeProcessor{outcome: bridge.Outcome{Status: http.StatusOK}}
	mux := http.NewServeMux()
	Routes(mux, NewHandler(p, 0))

	for _, path := range []string{IncomingPath, LegacyIncomingPath} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, formRequest(t, path, map[string]string{"from": "a@b.c", "text": "hi"}))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rr.Code)
		}
	}
	if len(p.got) != 2 {
		t.Errorf("processor called %d times, want 2", len(p.got))
	}
}

// blockingProcessor holds each request until release is closed.
type blockingProcessor struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingProcessor) Process(context.Context, models.InboundEmail) bridge.Outcome {
	close(p.started)
	<-p.release
	return bridge.Outcome{Status: http.StatusOK}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestServe_DrainsInFlightRequests verifies done stays open until a request
// that was running at cancellation has completed.
func TestServe_DrainsInFlightRequests(t *testing.T) {
	p := &blockingProcessor{started: make(chan struct{}), release: make(chan struct{})}
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, done, err := Serve(ctx, port, NewHandler(p, 0))
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	<-ready

	req := formRequest(t, IncomingPath, map[string]string{"from": "a@b.c", "text": "hi"})
	status := make(chan int, 1)
	go func() {
		url := fmt.Sprintf("http://127.0.0.1:%d%s", port, IncomingPath)
		resp, err := http.Post(url, req.Header.Get("Content-Type"), req.Body)
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()

	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the processor")
	}

	cancel()

	select {
	case <-done:
		t.Fatal("done closed while a request was still in flight")
	case <-time.After(200 * time.Millisecond):
	}

	close(p.release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("done not closed after the in-flight request finished")
	}

	if got := <-status; got != http.StatusOK {
		t.Errorf("in-flight request status = %d, want 200", got)
	}
}
