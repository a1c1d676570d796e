package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func runCmd(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFilterCmd(t *testing.T) {
	config := ""
	out, err := runCmd(t, newFilterCmd(&config), "", "mail", "john@example.com")
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if out != "mail [EMAIL]" {
		t.Errorf("filter output = %q", out)
	}

	out, err = runCmd(t, newFilterCmd(&config), "Call 555-123-4567", "--json")
	if err != nil {
		t.Fatalf("filter --json failed: %v", err)
	}
	if !strings.Contains(out, `"text":"Call [PHONE]"`) || !strings.Contains(out, `"phone":1`) {
		t.Errorf("filter --json output = %q", out)
	}
}

func TestCheckCmd(t *testing.T) {
	config := ""
	if _, err := runCmd(t, newCheckCmd(&config), "", "SSN", "123-45-6789"); !errors.Is(err, errPIIFound) {
		t.Errorf("Expected errPIIFound, got %v", err)
	}
	out, err := runCmd(t, newCheckCmd(&config), "", "It cost $50")
	if err != nil || !strings.Contains(out, "no PII found") {
		t.Errorf("check = %q, %v", out, err)
	}
}

func TestSummaryCmd(t *testing.T) {
	config := ""
	out, err := runCmd(t, newSummaryCmd(&config), "a@b.co c@d.org https://x.io")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !strings.Contains(out, `"emailsRemoved": 2`) || !strings.Contains(out, `"urlsRemoved": 1`) {
		t.Errorf("summary output = %q", out)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, newVersionCmd(), "")
	if err != nil || !strings.HasPrefix(out, "piifilter "+version) {
		t.Errorf("version = %q, %v", out, err)
	}
}
