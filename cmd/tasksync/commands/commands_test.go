package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskmaster/tasksync/internal/ports"
)

func newRoot() *cobra.Command {
	root := &cobra.Command{Use: "tasksync", SilenceUsage: true, SilenceErrors: true}
	flags := RegisterGlobalFlags(root)
	root.AddCommand(
		NewListCommand(flags),
		NewAddCommand(flags),
		NewDeleteCommand(flags),
		NewToggleCommand(flags),
		NewFetchCommand(flags),
		NewSyncCommand(flags),
		NewHashKeyCommand(),
		NewVersionCommand(),
	)
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func useTempStore(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("STORAGE_PATH", filepath.Join(t.TempDir(), "store.json"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ENABLE_METRICS", "false")
}

func listJSON(t *testing.T) ports.TaskListResponse {
	t.Helper()
	out, err := run(t, "list", "--output", "json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var resp ports.TaskListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("bad JSON %q: %v", out, err)
	}
	return resp
}

func TestAddToggleDelete(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "add", "Write report", "--due", "2024-05-03", "--priority", "High")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !strings.Contains(out, "[success] Task added successfully!") {
		t.Errorf("expected add notification, got %q", out)
	}

	resp := listJSON(t)
	if len(resp.Tasks) != 1 || resp.Tasks[0].Title != "Write report" || resp.Stats.Pending != 1 {
		t.Fatalf("unexpected list %+v", resp)
	}
	id := resp.Tasks[0].ID

	if _, err := run(t, "toggle", id); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if resp := listJSON(t); resp.Stats.Completed != 1 {
		t.Errorf("expected the task to be completed, got %+v", resp.Stats)
	}

	// No delete webhook is configured, so the removal stays local.
	out, err = run(t, "delete", id)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !strings.Contains(out, "[info] Task deleted locally (webhook error)") {
		t.Errorf("expected local delete notification, got %q", out)
	}
	if resp := listJSON(t); len(resp.Tasks) != 0 {
		t.Errorf("expected an empty list, got %+v", resp.Tasks)
	}
}

func TestAddRequiresDueDate(t *testing.T) {
	useTempStore(t)

	if _, err := run(t, "add", "No date"); err == nil {
		t.Error("expected an error without --due")
	}
	if _, err := run(t, "add", "Bad date", "--due", "soon"); err == nil {
		t.Error("expected an error for an invalid due date")
	}
}

func TestDeleteUnknownTask(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "delete", "404")
	if err == nil {
		t.Fatal("expected an error for an unknown task")
	}
	if !strings.Contains(out, "[error] Task not found") {
		t.Errorf("expected not found notification, got %q", out)
	}
}

func TestFetchFromWebhook(t *testing.T) {
	useTempStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"7","title":"From sheet","status":"Pending","dueDate":"2024-06-01","priority":"Low"}]`))
	}))
	defer srv.Close()
	t.Setenv("WEBHOOK_GET_TASKS_URL", srv.URL)

	out, err := run(t, "fetch")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !strings.Contains(out, "[success] Loaded 1 tasks from Google Sheets") {
		t.Errorf("unexpected output %q", out)
	}

	resp := listJSON(t)
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "7" || resp.LastSync == nil {
		t.Errorf("unexpected list after fetch %+v", resp)
	}
}

func TestSyncUnconfigured(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "sync")
	if err == nil {
		t.Fatal("expected an error without a sync webhook")
	}
	if !strings.Contains(out, "[error] Sync failed") {
		t.Errorf("expected sync failure notification, got %q", out)
	}
}

func TestListFormats(t *testing.T) {
	useTempStore(t)

	if _, err := run(t, "add", "First", "--due", "2024-05-03"); err != nil {
		t.Fatal(err)
	}

	table, err := run(t, "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(table, "First") || !strings.Contains(table, "Last sync: never") {
		t.Errorf("unexpected table %q", table)
	}

	out, err := run(t, "list", "-o", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	var resp ports.TaskListResponse
	if err := yaml.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("bad YAML %q: %v", out, err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Priority != "Medium" || resp.PendingNumbers[0] != 1 {
		t.Errorf("unexpected yaml list %+v", resp)
	}

	if _, err := run(t, "list", "-o", "xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestHashKeyAndVersion(t *testing.T) {
	out, err := run(t, "hash-key", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "$2a$") {
		t.Errorf("expected a bcrypt hash, got %q", out)
	}

	out, err = run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "tasksync v"+Version) {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestEphemeralDoesNotPersist(t *testing.T) {
	useTempStore(t)

	if _, err := run(t, "--ephemeral", "add", "Scratch", "--due", "2024-05-03"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if resp := listJSON(t); len(resp.Tasks) != 0 {
		t.Errorf("expected nothing on disk, got %+v", resp.Tasks)
	}
}

func TestCloseWaitsForBackgroundWork(t *testing.T) {
	useTempStore(t)

	a, err := bootstrap(context.Background(), &GlobalFlags{}, nil)
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	release := make(chan struct{})
	var finished atomic.Bool
	a.goBackground(func() {
		<-release
		finished.Store(true)
	})

	closed := make(chan struct{})
	go func() {
		a.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while background work was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return after background work finished")
	}
	if !finished.Load() {
		t.Error("expected background work to finish before storage was closed")
	}
}
