package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNoop_LiveMarksEveryRunnerHealthy(t *testing.T) {
	live, err := (Noop{}).Live(context.Background(), []string{"runner-a", "runner-b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !live["runner-a"] || !live["runner-b"] {
		t.Fatalf("expected every runner id to be reported healthy, got %v", live)
	}
}

func TestNoop_LiveEmptyInput(t *testing.T) {
	live, err := (Noop{}).Live(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected empty result for empty input, got %v", live)
	}
}

func TestNewKubernetes_MissingServiceAccountFails(t *testing.T) {
	// Outside a cluster there is no mounted service account token, so
	// NewKubernetes must fail rather than silently build a dead client.
	if _, err := NewKubernetes("default", "app=jobmesh"); err == nil {
		t.Fatalf("expected an error when the service account token is not mounted")
	}
}

func TestKubernetes_LiveMapsReadyConditionToRunnerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"items": [
				{"metadata": {"name": "runner-a"}, "status": {"conditions": [{"type": "Ready", "status": "True"}]}},
				{"metadata": {"name": "runner-b"}, "status": {"conditions": [{"type": "Ready", "status": "False"}]}}
			]
		}`))
	}))
	defer srv.Close()

	k := &Kubernetes{
		Namespace:     "default",
		LabelSelector: "app=jobmesh",
		client:        srv.Client(),
		apiServer:     srv.URL,
		token:         "test-token",
	}

	live, err := k.Live(context.Background(), []string{"runner-a", "runner-b", "runner-c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !live["runner-a"] {
		t.Fatalf("expected runner-a to be live")
	}
	if live["runner-b"] {
		t.Fatalf("expected runner-b not to be live (Ready=False)")
	}
	if live["runner-c"] {
		t.Fatalf("expected runner-c not to be live (absent from pod list)")
	}
}

func TestKubernetes_LiveNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	k := &Kubernetes{client: srv.Client(), apiServer: srv.URL, token: "t"}
	if _, err := k.Live(context.Background(), []string{"runner-a"}); err == nil {
		t.Fatalf("expected an error on non-200 response")
	}
}
