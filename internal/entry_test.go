package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/starford/threadlinking/internal/testutil"
	"github.com/starford/threadlinking/internal/threadservice"
)

func TestServe_RequiresConfig(t *testing.T) {
	if err := Serve(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestServe_HealthAndAPI(t *testing.T) {
	home := testutil.Home(t)
	svc := threadservice.New(threadservice.Config{
		Home:   home,
		Locker: testutil.Locker(),
		Logger: testutil.Logger(),
	})
	if _, err := svc.Create(context.Background(), threadservice.CreateInput{Tag: "served"}); err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	base := fmt.Sprintf("http://%s", ln.Addr())

	cfg := NewDefaultConfig()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx,
			WithConfig(cfg),
			WithService(svc),
			WithLogger(testutil.Logger()),
			WithListener(ln))
	}()

	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(base + "/health/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live = %d", resp.StatusCode)
	}

	resp, err = client.Get(base + "/api/threads")
	if err != nil {
		t.Fatal(err)
	}
	var list threadservice.ListResult
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(list.Threads) != 1 || list.Threads[0].Tag != "served" {
		t.Errorf("threads = %+v", list.Threads)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
