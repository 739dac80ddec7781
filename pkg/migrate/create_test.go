package migrate

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestCreateAtRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := createAt(dir, "add refunds", now)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !strings.HasSuffix(path, "20260301120000_add_refunds.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "-- rollback add_refunds") {
		t.Fatalf("template not rendered: %s", body)
	}
	if _, err := createAt(dir, "add refunds", now); err == nil {
		t.Fatal("expected collision error")
	}
}
