package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestLog(t *testing.T) *TxLog {
	t.Helper()
	journal, err := OpenTxLog(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestTxLogRecordAndGet(t *testing.T) {
	journal := openTestLog(t)
	entry := TxLogEntry{
		Hash:    "0xabc123",
		Status:  "accepted",
		ChainID: "test-1",
		Nonce:   7,
		From:    "dgt1deadbeef",
	}
	if err := journal.Record(entry); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	got, err := journal.Get("0xabc123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != "accepted" || got.Nonce != 7 || got.ChainID != "test-1" {
		t.Errorf("entry mismatch: %+v", got)
	}
	if got.SubmittedAt.IsZero() {
		t.Error("submitted_at was not stamped")
	}

	if _, err := journal.Get("0xmissing"); !errors.Is(err, ErrTxNotRecorded) {
		t.Errorf("got %v, want ErrTxNotRecorded", err)
	}
}

func TestTxLogRequiresHash(t *testing.T) {
	journal := openTestLog(t)
	if err := journal.Record(TxLogEntry{Status: "accepted"}); err == nil {
		t.Error("expected failure for entry without hash")
	}
}

func TestTxLogOverwriteOnRetry(t *testing.T) {
	journal := openTestLog(t)
	if err := journal.Record(TxLogEntry{Hash: "0x01", Status: "submit_failed"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := journal.Record(TxLogEntry{Hash: "0x01", Status: "accepted"}); err != nil {
		t.Fatalf("re-record failed: %v", err)
	}
	got, err := journal.Get("0x01")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != "accepted" {
		t.Errorf("got status %s after retry", got.Status)
	}
}

func TestTxLogListMostRecentFirst(t *testing.T) {
	journal := openTestLog(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		entry := TxLogEntry{
			Hash:        fmt.Sprintf("0x%02d", i),
			Status:      "accepted",
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := journal.Record(entry); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	entries, err := journal.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	for i, want := range []string{"0x02", "0x01", "0x00"} {
		if entries[i].Hash != want {
			t.Errorf("entry %d: got %s, want %s", i, entries[i].Hash, want)
		}
	}
}
