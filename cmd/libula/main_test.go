package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/libula/internal/ledger"
	"github.com/nugget/libula/internal/supabase/supabasetest"
)

func TestRun_NoCommandPrintsUsage(t *testing.T) {
	var out, errb bytes.Buffer
	if err := run(context.Background(), &out, &errb, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, cmd := range []string{"new", "continue", "audio", "usage", "credit", "version"} {
		if !strings.Contains(out.String(), "  "+cmd) {
			t.Errorf("usage missing command %q", cmd)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"unknown flag", []string{"-x", "version"}, "unknown flag"},
		{"bad output", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"new without user", []string{"new", "-character", "1", "-type", "2"}, "-user is required"},
		{"new bad id", []string{"new", "-user", "u", "-character", "x", "-type", "2"}, "not a valid id"},
		{"continue unknown option", []string{"continue", "-bogus", "1"}, "unknown option"},
		{"audio missing value", []string{"audio", "-user"}, "needs a value"},
		{"usage bad grouping", []string{"usage", "-by", "color"}, "-by must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errb bytes.Buffer
			err := run(context.Background(), &out, &errb, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run(%q) error = %v, want %q", tt.args, err, tt.want)
			}
		})
	}
}

func TestRun_VersionJSON(t *testing.T) {
	var out, errb bytes.Buffer
	if err := run(context.Background(), &out, &errb, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if info["version"] == "" || info["go_version"] == "" {
		t.Errorf("version info = %v", info)
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-user", "u-1", "--side=1, 2,,3", "-lang=en"}, "user", "side", "lang")
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts["user"] != "u-1" || opts.get("lang", "de") != "en" || opts.get("token", "none") != "none" {
		t.Errorf("opts = %v", opts)
	}
	ids, err := opts.ids("side")
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if fmt.Sprint(ids) != "[1 2 3]" {
		t.Errorf("ids = %v, want [1 2 3]", ids)
	}

	if _, err := parseOptions([]string{"stray"}, "user"); err == nil {
		t.Error("positional argument should be rejected")
	}
	if _, err := (options{"n": "-4"}).id("n"); err == nil {
		t.Error("negative id should be rejected")
	}
}

// writeConfig writes a minimal valid config pointing at srvURL and
// returns its path.
func writeConfig(t *testing.T, srvURL string) (cfgPath, ledgerPath string) {
	t.Helper()
	dir := t.TempDir()
	ledgerPath = filepath.Join(dir, "ledger.db")
	cfg := fmt.Sprintf(`openai:
  api_key: sk-test
  assistant_id: asst_test
supabase:
  url: %s
  anon_key: anon-key
  service_token: service-token
ledger:
  path: %s
log_level: error
`, srvURL, ledgerPath)
	cfgPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, ledgerPath
}

func TestRunCredit(t *testing.T) {
	srv := supabasetest.NewServer(t)
	srv.Seed("credits", map[string]any{"id": "u-1", "credit": 3})
	cfgPath, _ := writeConfig(t, srv.URL)

	var out, errb bytes.Buffer
	if err := run(context.Background(), &out, &errb, []string{"-config", cfgPath, "credit", "-user", "u-1"}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "u-1: 3" {
		t.Errorf("credit output = %q, want %q", got, "u-1: 3")
	}

	out.Reset()
	args := []string{"-config", cfgPath, "-o", "json", "credit", "-user", "u-1", "-set", "25"}
	if err := run(context.Background(), &out, &errb, args); err != nil {
		t.Fatalf("credit -set: %v", err)
	}
	var report balanceReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if report.Balance != 25 || report.UserID != "u-1" {
		t.Errorf("report = %+v, want u-1 at 25", report)
	}
}

func TestRunUsage(t *testing.T) {
	srv := supabasetest.NewServer(t)
	cfgPath, ledgerPath := writeConfig(t, srv.URL)

	db, err := ledger.NewStore(ledgerPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()
	for _, e := range []ledger.Entry{
		{RequestID: "r-1", UserID: "u-1", Workflow: "new_story", Outcome: ledger.OutcomeOK, Charged: 2, Duration: time.Second},
		{RequestID: "r-2", UserID: "u-1", Workflow: "audio_story", Outcome: ledger.OutcomeFailed, Stage: "synthesize", Error: "speech down"},
		{RequestID: "r-3", UserID: "u-2", Workflow: "new_story", Outcome: ledger.OutcomeOK, Charged: 2},
	} {
		if err := db.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	db.Close()

	var out, errb bytes.Buffer
	if err := run(ctx, &out, &errb, []string{"-config", cfgPath, "-o", "json", "usage", "-by", "user"}); err != nil {
		t.Fatalf("usage: %v", err)
	}
	var report usageReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if report.Total.Runs != 3 || report.Total.Failed != 1 || report.Total.Charged != 4 {
		t.Errorf("total = %+v", report.Total)
	}
	if g := report.Groups["u-1"]; g == nil || g.Runs != 2 {
		t.Errorf("u-1 group = %+v, want 2 runs", g)
	}

	out.Reset()
	if err := run(ctx, &out, &errb, []string{"-config", cfgPath, "usage", "-request", "r-2"}); err != nil {
		t.Fatalf("usage -request: %v", err)
	}
	for _, want := range []string{"outcome   failed", "stage     synthesize", "error     speech down"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("entry output %q missing %q", out.String(), want)
		}
	}

	err = run(ctx, &out, &errb, []string{"-config", cfgPath, "usage", "-request", "nope"})
	if err == nil || !strings.Contains(err.Error(), "no run recorded") {
		t.Errorf("unknown request error = %v", err)
	}
}
