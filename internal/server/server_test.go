package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mt5-command-server/internal/config"
	"mt5-command-server/internal/middleware"
	"mt5-command-server/internal/models"
	"mt5-command-server/internal/procexec"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.MT5.Root = t.TempDir()
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.Resolve()
	return cfg
}

func noopRunner() procexec.Runner {
	return procexec.RunnerFunc(func(ctx context.Context, cmd procexec.Command) (procexec.Result, error) {
		return procexec.Result{}, nil
	})
}

func TestNewCreatesDirectories(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New(cfg, noopRunner()); err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	for _, dir := range []string{cfg.MT5.ScriptsDir, cfg.MT5.LogsDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("Expected directory %s to exist: %v", dir, err)
		}
	}
	if cfg.MT5.ScriptsDir != filepath.Join(cfg.MT5.Root, "MQL5", "Scripts") {
		t.Fatalf("Unexpected scripts dir %s", cfg.MT5.ScriptsDir)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MT5.CompileTimeout = 0

	if _, err := New(cfg, noopRunner()); err == nil {
		t.Fatal("Expected invalid config to be rejected")
	}
}

func TestServeAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, noopRunner())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	var health models.HealthResponse
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()

	if health.Status != "healthy" {
		t.Fatalf("Expected status 'healthy', got '%s'", health.Status)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Fatal("Expected request ID header from the middleware chain")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down")
	}
}

func TestRateLimitAppliesToProcessEndpoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.PerMinute = 1
	cfg.RateLimit.Burst = 1

	srv, err := New(cfg, noopRunner())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	listener, _ := net.Listen("tcp", "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, listener)

	base := "http://" + listener.Addr().String()
	body := `{"script_name":"Missing","account":"1"}`

	var codes []int
	for i := 0; i < 2; i++ {
		resp, err := http.Post(base+"/execute-script", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("Failed to send request: %v", err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("Expected 200 then 429, got %v", codes)
	}

	// Health is never limited
	for i := 0; i < 3; i++ {
		resp, err := http.Get(base + "/health")
		if err != nil {
			t.Fatalf("Failed to send request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status code 200 for health, got %d", resp.StatusCode)
		}
	}
}

func TestQueuedRequestsOnOneScriptAllGetAResponse(t *testing.T) {
	cfg := testConfig(t)
	cfg.MT5.CompileTimeout = time.Second
	cfg.MT5.ExecuteTimeout = time.Second
	cfg.MT5.LockTimeout = 2 * time.Second
	cfg.RateLimit.PerMinute = 0

	// Every run hangs until its timeout
	var spawns int32
	runner := procexec.RunnerFunc(func(ctx context.Context, cmd procexec.Command) (procexec.Result, error) {
		atomic.AddInt32(&spawns, 1)
		select {
		case <-time.After(cmd.Timeout):
		case <-ctx.Done():
		}
		return procexec.Result{ExitCode: -1, TimedOut: true, Duration: cmd.Timeout}, nil
	})

	srv, err := New(cfg, runner)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.MT5.ScriptsDir, "Foo.ex5"), []byte("ex5"), 0644); err != nil {
		t.Fatalf("Failed to create artifact: %v", err)
	}

	listener, _ := net.Listen("tcp", "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, listener)

	client := &http.Client{Timeout: cfg.WriteTimeout() + 5*time.Second}
	url := "http://" + listener.Addr().String() + "/execute-script"

	const requests = 10
	errorChan := make(chan error, requests)

	for i := 0; i < requests; i++ {
		go func() {
			start := time.Now()
			resp, err := client.Post(url, "application/json", strings.NewReader(`{"script_name":"Foo","account":"1"}`))
			if err != nil {
				errorChan <- err
				return
			}
			defer resp.Body.Close()

			var response models.ExecuteResponse
			if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
				errorChan <- err
				return
			}
			if resp.StatusCode != http.StatusOK || response.Status != "failed" {
				errorChan <- fmt.Errorf("expected 200 with status 'failed', got %d %+v", resp.StatusCode, response)
				return
			}
			if elapsed := time.Since(start); elapsed >= cfg.WriteTimeout() {
				errorChan <- fmt.Errorf("response took %s, write timeout is %s", elapsed, cfg.WriteTimeout())
				return
			}
			errorChan <- nil
		}()
	}

	for i := 0; i < requests; i++ {
		if err := <-errorChan; err != nil {
			t.Fatalf("Queued request failed: %v", err)
		}
	}

	if n := atomic.LoadInt32(&spawns); n == 0 || n >= requests {
		t.Fatalf("Expected requests that could not take the lock to skip the terminal, got %d spawns for %d requests", n, requests)
	}
}

func TestUploadWhileScriptBusy(t *testing.T) {
	cfg := testConfig(t)
	cfg.MT5.LockTimeout = time.Second
	cfg.RateLimit.PerMinute = 0

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	runner := procexec.RunnerFunc(func(ctx context.Context, cmd procexec.Command) (procexec.Result, error) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return procexec.Result{}, nil
	})

	srv, err := New(cfg, runner)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	os.WriteFile(filepath.Join(cfg.MT5.ScriptsDir, "Foo.ex5"), []byte("ex5"), 0644)

	listener, _ := net.Listen("tcp", "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, listener)
	base := "http://" + listener.Addr().String()

	executed := make(chan int, 1)
	go func() {
		resp, err := http.Post(base+"/execute-script", "application/json", strings.NewReader(`{"script_name":"Foo","account":"1"}`))
		if err != nil {
			executed <- 0
			return
		}
		resp.Body.Close()
		executed <- resp.StatusCode
	}()
	<-started

	resp, err := http.Post(base+"/upload-script", "application/json", strings.NewReader(`{"script":"x","filename":"Foo.mq5","account":"1"}`))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	var response models.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&response)
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected status code 503, got %d", resp.StatusCode)
	}
	if response.Status != "error" || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("Expected error envelope with Retry-After, got %+v", response)
	}
	if _, err := os.Stat(filepath.Join(cfg.MT5.ScriptsDir, "Foo.mq5")); !os.IsNotExist(err) {
		t.Fatal("Busy upload should not have written the script")
	}

	close(release)
	if code := <-executed; code != http.StatusOK {
		t.Fatalf("Expected the running execute to finish with 200, got %d", code)
	}
}
