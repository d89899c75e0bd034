//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/oghouse/api/internal/domain"
	pconfig "github.com/oghouse/api/internal/platform/config"
	pfirestore "github.com/oghouse/api/internal/platform/firestore"
	"github.com/oghouse/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestOrderRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "orders-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	placed := time.Now().UTC().Truncate(time.Millisecond)
	order := domain.Order{
		ID:            "ord-int-1",
		CustomerName:  "Asha Rao",
		CustomerID:    "cust-1",
		Items:         []domain.OrderItem{{ItemRef: "menu-7", Name: "Masala Dosa", Quantity: 2, UnitPrice: 120, LineTotal: 240}},
		TotalAmount:   240,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		StatusHistory: []domain.StatusHistoryEntry{{Status: domain.OrderStatusPending, Timestamp: placed}},
		CreatedAt:     placed,
		UpdatedAt:     placed,
	}

	if err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, order); err == nil {
		t.Fatal("expected duplicate insert to fail")
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected conflict on duplicate insert, got %v", err)
		}
	}

	loaded, err := repo.FindByID(ctx, "ord-int-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if loaded.CustomerName != "Asha Rao" || len(loaded.Items) != 1 {
		t.Fatalf("unexpected round trip: %+v", loaded)
	}

	// Concurrent history appends must all survive the transaction loop.
	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			_, err := repo.Mutate(ctx, "ord-int-1", func(o *domain.Order) error {
				o.StatusHistory = append(o.StatusHistory, domain.StatusHistoryEntry{
					Status:    domain.OrderStatusPreparing,
					Timestamp: time.Now().UTC(),
					Notes:     fmt.Sprintf("worker-%d", idx),
				})
				o.Status = domain.OrderStatusPreparing
				return nil
			})
			if err != nil {
				t.Errorf("mutate(%d): %v", idx, err)
			}
		}(i)
	}
	wg.Wait()

	loaded, err = repo.FindByID(ctx, "ord-int-1")
	if err != nil {
		t.Fatalf("find after mutate: %v", err)
	}
	if got := len(loaded.StatusHistory); got != workers+1 {
		t.Fatalf("expected %d history entries, got %d", workers+1, got)
	}

	listed, err := repo.List(ctx, repositories.OrderListFilter{Status: domain.OrderStatusPreparing})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "ord-int-1" {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	if err := repo.Delete(ctx, "ord-int-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, "ord-int-1"); err == nil {
		t.Fatal("expected not found after delete")
	}
	if err := repo.Delete(ctx, "ord-int-1"); err == nil {
		t.Fatal("expected delete of missing order to fail")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
