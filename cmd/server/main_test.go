package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"investcalc/internal/config"
)

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"--db", "/tmp/x.db", "--port", "0", "--refresh-interval", "5m"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if f.dbPath != "/tmp/x.db" || f.port != 0 || f.refreshInterval != 5*time.Minute || f.host != "127.0.0.1" {
		t.Fatalf("unexpected flags %+v", f)
	}
	if _, err := parseFlags([]string{"--port", "-1"}, io.Discard); err == nil {
		t.Fatalf("expected error for negative port")
	}
	if _, err := parseFlags([]string{"--bogus"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestWatchParentExits(t *testing.T) {
	origGetppid := getppid
	origSleep := sleep
	origExit := exit
	defer func() {
		getppid = origGetppid
		sleep = origSleep
		exit = origExit
	}()

	getppid = func() int { return 1 }
	sleep = func(time.Duration) {}

	done := make(chan struct{})
	exit = func(code int) {
		close(done)
		runtime.Goexit()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	go watchParent(logger)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("watchParent did not exit")
	}
}

func TestRunServesAndShutsDown(t *testing.T) {
	tmp := t.TempDir()
	orig := slog.Default()
	defer func() {
		slog.SetDefault(orig)
		config.SetRuntimeDataDir("")
		config.SetRuntimeDBPath("")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{
			"--data-dir", tmp,
			"--db", filepath.Join(tmp, "ledger.db"),
			"--port", "0",
			"--log-level", "error",
		}, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	body := strings.NewReader(`{"stock":"ACME","day":"2024-01-01","shares":10,"money":-1000}`)
	resp, err := http.Post(fmt.Sprintf("http://%s/api/flows", addr), "application/json", body)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	// The watcher reloads the view after the record.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err = http.Get(fmt.Sprintf("http://%s/api/portfolio", addr))
		if err != nil {
			t.Fatalf("portfolio: %v", err)
		}
		var snap struct {
			Holdings []json.RawMessage `json:"holdings"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if len(snap.Holdings) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("view never picked up the recorded flow")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not exit")
	}
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	if err := run(context.Background(), []string{"--log-level", "loud"}, nil); err == nil {
		t.Fatalf("expected error for bad log level")
	}
}
