package river_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	_ "modernc.org/sqlite"

	riveradapter "github.com/Krutik090/phishing-backend/internal/adapter/river"
	"github.com/Krutik090/phishing-backend/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

func setupClient(t *testing.T, db *sql.DB) *riveradapter.Client {
	t.Helper()

	client, err := riveradapter.Setup(context.Background(), db)
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	return client
}

func startClient(t *testing.T, client *riveradapter.Client) {
	t.Helper()

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})
}

func TestNotifier_SendInvitation_EnqueuesJob(t *testing.T) {
	db := setupTestDB(t)
	client := setupClient(t, db)
	ctx := context.Background()

	// Subscribe to job completions before starting so we don't miss events.
	subscribeChan, subscribeCancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()

	startClient(t, client)

	notifier := riveradapter.NewNotifier(client)
	tenant := domain.NewTenant("t-1", "Acme Corp", "acme", "u-1")
	inv := domain.NewInvitation("i-1", "admin@acme.test", "t-1", "admin", "tok-abc")

	if err := notifier.SendInvitation(ctx, tenant, inv); err != nil {
		t.Fatalf("SendInvitation failed: %v", err)
	}

	// Wait for the worker to process the job.
	select {
	case event := <-subscribeChan:
		if event.Job.Kind != "invitation.email" {
			t.Errorf("job kind = %q, want %q", event.Job.Kind, "invitation.email")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
}

func TestNotifier_SendInvitation_PreservesInvitationData(t *testing.T) {
	db := setupTestDB(t)
	client := setupClient(t, db)
	ctx := context.Background()

	subscribeChan, subscribeCancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()

	startClient(t, client)

	notifier := riveradapter.NewNotifier(client)
	tenant := domain.NewTenant("t-42", "Test Corp", "test-corp", "u-9")
	inv := domain.NewInvitation("i-42", "owner@testcorp.test", "t-42", "admin", "tok-42")

	if err := notifier.SendInvitation(ctx, tenant, inv); err != nil {
		t.Fatalf("SendInvitation failed: %v", err)
	}

	select {
	case event := <-subscribeChan:
		// Verify the job carried the right args by checking the encoded JSON.
		args := event.Job.EncodedArgs
		if args == nil {
			t.Fatal("expected encoded args, got nil")
		}
		argsStr := string(args)
		for _, want := range []string{
			`"email":"owner@testcorp.test"`,
			`"role":"admin"`,
			`"token":"tok-42"`,
			`"tenant_id":"t-42"`,
			`"organization":"Test Corp"`,
			`"subdomain":"test-corp"`,
		} {
			if !strings.Contains(argsStr, want) {
				t.Errorf("encoded args missing %s, got: %s", want, argsStr)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
}
