package logfields

import (
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"TaskID", KeyTaskID, "abc", TaskID("abc")},
		{"TaskName", KeyTaskName, "update_docs", TaskName("update_docs")},
		{"TaskStatus", KeyTaskStatus, "running", TaskStatus("running")},
		{"Project", KeyProject, "pip", Project("pip")},
		{"Version", KeyVersion, "latest", Version("latest")},
		{"Stage", KeyStage, "setup", Stage("setup")},
		{"URL", KeyURL, "http://example", URL("http://example")},
		{"Channel", KeyChannel, "email", Channel("email")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Commit", KeyCommit, "deadbeef", Commit("deadbeef")},
		{"Worker", KeyWorker, "worker-0", Worker("worker-0")},
		{"Method", KeyMethod, "POST", Method("POST")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric helpers.
func TestNumericHelpers(t *testing.T) {
	if v := BuildID(42); v.Key != KeyBuildID || v.Value.Int64() != 42 {
		t.Fatalf("BuildID mismatch: %v", v)
	}
	if v := Recipients(3); v.Key != KeyRecipients {
		t.Fatalf("Recipients key mismatch: %s", v.Key)
	}
	if v := Status(204); v.Key != KeyStatus {
		t.Fatalf("Status key mismatch: %s", v.Key)
	}
	if v := DurationMS(12.5); v.Key != KeyDurationMS {
		t.Fatalf("DurationMS key mismatch: %s", v.Key)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("Expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
