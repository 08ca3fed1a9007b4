// Package health implements the two runner-liveness modes spec.md §4.3
// names: "k8s" (queries pod readiness by label selector) and "noop"
// (development; every known runner is considered healthy).
package health

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

func tlsCertPoolOrNil(pem []byte) *x509.CertPool {
	pool := x509.NewCertPool()
	if pool.AppendCertsFromPEM(pem) {
		return pool
	}
	return nil
}

// Checker reports which runner ids are currently healthy.
type Checker interface {
	Live(ctx context.Context, runnerIDs []string) (map[string]bool, error)
}

// Noop treats every runner as healthy; used in development (spec.md §6.4
// CLUSTER_HEALTH_MODE=noop).
type Noop struct{}

func (Noop) Live(_ context.Context, runnerIDs []string) (map[string]bool, error) {
	live := make(map[string]bool, len(runnerIDs))
	for _, id := range runnerIDs {
		live[id] = true
	}
	return live, nil
}

// Kubernetes queries the in-cluster API server for pod readiness by
// label selector, using the pod's mounted service account token rather
// than a full client-go dependency — runner ids are expected to be pod
// names.
type Kubernetes struct {
	Namespace     string
	LabelSelector string
	client        *http.Client
	apiServer     string
	token         string
}

// NewKubernetes builds a checker from the in-cluster service account
// files; callers outside a cluster should use Noop instead.
func NewKubernetes(namespace, labelSelector string) (*Kubernetes, error) {
	tokenBytes, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/token")
	if err != nil {
		return nil, fmt.Errorf("health: read service account token: %w", err)
	}
	caCert, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/ca.crt")
	if err != nil {
		return nil, fmt.Errorf("health: read service account ca: %w", err)
	}

	host := os.Getenv("KUBERNETES_SERVICE_HOST")
	port := os.Getenv("KUBERNETES_SERVICE_PORT")
	if host == "" || port == "" {
		return nil, fmt.Errorf("health: KUBERNETES_SERVICE_HOST/PORT not set")
	}

	pool := tlsCertPoolOrNil(caCert)
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}

	return &Kubernetes{
		Namespace:     namespace,
		LabelSelector: labelSelector,
		client:        client,
		apiServer:     "https://" + host + ":" + port,
		token:         string(tokenBytes),
	}, nil
}

type podList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Conditions []struct {
				Type   string `json:"type"`
				Status string `json:"status"`
			} `json:"conditions"`
		} `json:"status"`
	} `json:"items"`
}

func (k *Kubernetes) Live(ctx context.Context, runnerIDs []string) (map[string]bool, error) {
	url := fmt.Sprintf("%s/api/v1/namespaces/%s/pods?labelSelector=%s", k.apiServer, k.Namespace, k.LabelSelector)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+k.token)

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health: kube api returned %d", resp.StatusCode)
	}

	var list podList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}

	ready := make(map[string]bool, len(list.Items))
	for _, item := range list.Items {
		for _, cond := range item.Status.Conditions {
			if cond.Type == "Ready" && cond.Status == "True" {
				ready[item.Metadata.Name] = true
			}
		}
	}

	out := make(map[string]bool, len(runnerIDs))
	for _, id := range runnerIDs {
		out[id] = ready[id]
	}
	return out, nil
}
