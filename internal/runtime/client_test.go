package runtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"modelforge/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError)
}

func TestClient_List(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[{"name":"qwen2.5-coder:7b","size":4700000000},{"name":"nomic-embed-text:latest","size":274000000}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	models, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(models) != 2 {
		t.Fatalf("Expected 2 models, got %d", len(models))
	}
	if models[0].Name != "qwen2.5-coder:7b" {
		t.Errorf("Expected qwen2.5-coder:7b, got %s", models[0].Name)
	}
	if models[1].Size != 274000000 {
		t.Errorf("Expected size 274000000, got %d", models[1].Size)
	}
}

func TestClient_List_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())
	if _, err := client.List(context.Background()); err == nil {
		t.Error("Expected error for 500 response")
	}
}

func TestClient_Pull_Success(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])

		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"status":"downloading","completed":100,"total":200}`)
		fmt.Fprintln(w, `{"status":"success"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	if err := client.Pull(context.Background(), "qwen2.5-coder:7b"); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if !strings.Contains(gotBody, "qwen2.5-coder:7b") {
		t.Errorf("Expected request body to name the model, got %s", gotBody)
	}
}

func TestClient_Pull_ErrorLine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	err := client.Pull(context.Background(), "no-such-model")
	if err == nil {
		t.Fatal("Expected error from error line")
	}
	if !strings.Contains(err.Error(), "file does not exist") {
		t.Errorf("Expected error text from stream, got %v", err)
	}
}

func TestClient_Pull_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := client.Pull(ctx, "qwen2.5-coder:7b"); err == nil {
		t.Error("Expected timeout error")
	}
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestClient_PingWithRetries_EventualSuccess(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())
	if err := client.PingWithRetries(context.Background(), 5, time.Millisecond); err != nil {
		t.Errorf("Expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestClient_PingWithRetries_Exhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())
	if err := client.PingWithRetries(context.Background(), 2, time.Millisecond); err == nil {
		t.Error("Expected error after retries exhausted")
	}
}

func TestClient_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("Expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())
	if err := client.Delete(context.Background(), "moondream"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}

func TestNewClient_DefaultEndpoint(t *testing.T) {
	client := NewClient("", testLogger())
	if client.Endpoint() != DefaultEndpoint {
		t.Errorf("Expected default endpoint, got %s", client.Endpoint())
	}
}
