package utils

import "testing"

func TestMarkEventSeenScriptCompiles(t *testing.T) {
	// Compile-time smoke test: the script should be initialized.
	if markEventSeenScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}
