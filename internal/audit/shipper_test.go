package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testEvent(action string) *Event {
	return &Event{
		Timestamp:     time.Now().UTC(),
		Action:        action,
		IPAddress:     "1.2.3.4",
		Domain:        "example.com",
		ViolationKind: "blacklisted",
	}
}

func TestFileShipperWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	shipper, err := NewFileShipper(&FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer shipper.Close()

	for _, action := range []string{ActionViolationDetected, ActionAutoBlockApplied} {
		if err := shipper.Ship(context.Background(), testEvent(action)); err != nil {
			t.Fatalf("Ship(%s): %v", action, err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer file.Close()

	var actions []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		actions = append(actions, event.Action)
	}
	if len(actions) != 2 || actions[0] != ActionViolationDetected || actions[1] != ActionAutoBlockApplied {
		t.Errorf("logged actions = %v", actions)
	}
}

func TestWebhookShipperDirectSend(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
		header   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		mu.Lock()
		received = append(received, event)
		header = r.Header.Get("X-Audit-Token")
		mu.Unlock()
	}))
	defer server.Close()

	shipper, err := NewWebhookShipper(&WebhookConfig{
		URL:     server.URL,
		Headers: map[string]string{"X-Audit-Token": "secret"},
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer shipper.Close()

	if err := shipper.Ship(context.Background(), testEvent(ActionAutoBlockApplied)); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Action != ActionAutoBlockApplied {
		t.Errorf("received = %+v", received)
	}
	if header != "secret" {
		t.Errorf("custom header not forwarded, got %q", header)
	}
}

func TestWebhookShipperRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	shipper, err := NewWebhookShipper(&WebhookConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer shipper.Close()

	if err := shipper.Ship(context.Background(), testEvent(ActionLinkIssued)); err == nil {
		t.Error("expected an error for a 502 response")
	}
}

func TestWebhookShipperBatching(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]Event
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []Event
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode batch body: %v", err)
		}
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
	}))
	defer server.Close()

	shipper, err := NewWebhookShipper(&WebhookConfig{
		URL:           server.URL,
		BatchSize:     2,
		FlushInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer shipper.Close()

	for i := 0; i < 2; i++ {
		if err := shipper.Ship(context.Background(), testEvent(ActionViolationDetected)); err != nil {
			t.Fatalf("Ship %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := len(batches) > 0
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("batches = %+v, want one batch of two events", batches)
	}
}

func TestMultiShipperFanOut(t *testing.T) {
	dir := t.TempDir()
	ms, err := NewMultiShipper([]ShipperConfig{
		{Enabled: true, Type: "file", File: &FileConfig{Path: filepath.Join(dir, "a.log")}},
		{Enabled: true, Type: "file", File: &FileConfig{Path: filepath.Join(dir, "b.log")}},
		{Enabled: false, Type: "file", File: &FileConfig{Path: filepath.Join(dir, "disabled.log")}},
	})
	if err != nil {
		t.Fatalf("NewMultiShipper: %v", err)
	}
	defer ms.Close()

	if err := ms.Ship(context.Background(), testEvent(ActionRuleCreated)); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	for _, name := range []string{"a.log", "b.log"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || len(data) == 0 {
			t.Errorf("%s should contain the event: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "disabled.log")); !os.IsNotExist(err) {
		t.Error("disabled shipper must not be created")
	}
}

func TestMultiShipperUnknownType(t *testing.T) {
	if _, err := NewMultiShipper([]ShipperConfig{{Enabled: true, Type: "carrier-pigeon"}}); err == nil {
		t.Error("expected an error for an unknown shipper type")
	}
}
