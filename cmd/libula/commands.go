package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nugget/libula/internal/credit"
	"github.com/nugget/libula/internal/ledger"
	"github.com/nugget/libula/internal/workflow"
)

const defaultLanguage = "de"

// describe turns a workflow error into the message shown to the user.
func describe(err error) error {
	if errors.Is(err, credit.ErrInsufficientCredit) {
		return errors.New("not enough credit")
	}
	return err
}

func runNew(ctx context.Context, out output, stderr io.Writer, configPath string, args []string) error {
	opts, err := parseOptions(args, "user", "character", "type", "lang", "side", "token")
	if err != nil {
		return fmt.Errorf("new: %w", err)
	}
	req := workflow.NewStoryRequest{Language: opts.get("lang", defaultLanguage), Token: opts["token"]}
	if req.UserID, err = opts.require("user"); err != nil {
		return fmt.Errorf("new: %w", err)
	}
	if req.MainCharacterID, err = opts.id("character"); err != nil {
		return fmt.Errorf("new: %w", err)
	}
	if req.StoryTypeID, err = opts.id("type"); err != nil {
		return fmt.Errorf("new: %w", err)
	}
	if req.SideCharacterIDs, err = opts.ids("side"); err != nil {
		return fmt.Errorf("new: %w", err)
	}

	cfg, logger, err := setup(stderr, configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	resp, err := a.coord.NewStory(ctx, req)
	if err != nil {
		return describe(err)
	}
	return out.print(resp, func(w io.Writer) {
		fmt.Fprintf(w, "story %d created (request %s)\n", resp.StoryID, resp.RequestID)
	})
}

func runContinue(ctx context.Context, out output, stderr io.Writer, configPath string, args []string) error {
	opts, err := parseOptions(args, "user", "suggestion", "parent", "lang", "token")
	if err != nil {
		return fmt.Errorf("continue: %w", err)
	}
	req := workflow.ContinueStoryRequest{Language: opts.get("lang", defaultLanguage), Token: opts["token"]}
	if req.UserID, err = opts.require("user"); err != nil {
		return fmt.Errorf("continue: %w", err)
	}
	if req.SuggestionID, err = opts.id("suggestion"); err != nil {
		return fmt.Errorf("continue: %w", err)
	}
	if req.ParentID, err = opts.id("parent"); err != nil {
		return fmt.Errorf("continue: %w", err)
	}

	cfg, logger, err := setup(stderr, configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	resp, err := a.coord.ContinueStory(ctx, req)
	if err != nil {
		return describe(err)
	}
	return out.print(resp, func(w io.Writer) {
		fmt.Fprintf(w, "story %d created under %d (request %s)\n", resp.StoryID, resp.ParentID, resp.RequestID)
	})
}

func runAudio(ctx context.Context, out output, stderr io.Writer, configPath string, args []string) error {
	opts, err := parseOptions(args, "user", "story", "voice", "token")
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	req := workflow.AudioStoryRequest{Voice: opts["voice"], Token: opts["token"]}
	if req.UserID, err = opts.require("user"); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if req.StoryID, err = opts.id("story"); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	cfg, logger, err := setup(stderr, configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	resp, err := a.coord.AudioStory(ctx, req)
	if err != nil {
		return describe(err)
	}
	return out.print(resp, func(w io.Writer) {
		fmt.Fprintln(w, resp.AudioURL)
	})
}

// usageReport is the JSON shape of the usage command.
type usageReport struct {
	Since  time.Time                  `json:"since"`
	Total  *ledger.Summary            `json:"total"`
	Groups map[string]*ledger.Summary `json:"groups,omitempty"`
}

func runUsage(ctx context.Context, out output, stderr io.Writer, configPath string, args []string) error {
	opts, err := parseOptions(args, "since", "by", "request")
	if err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	since, err := time.ParseDuration(opts.get("since", "24h"))
	if err != nil || since <= 0 {
		return fmt.Errorf("usage: invalid -since %q", opts["since"])
	}
	by := opts.get("by", "workflow")
	if by != "workflow" && by != "user" {
		return fmt.Errorf("usage: -by must be workflow or user, got %q", by)
	}

	cfg, _, err := setup(stderr, configPath)
	if err != nil {
		return err
	}
	db, err := ledger.NewStore(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	if id := opts["request"]; id != "" {
		e, err := db.ByRequest(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("no run recorded for request %s", id)
		}
		return out.print(e, func(w io.Writer) { printEntry(w, e) })
	}

	// Ledger timestamps have second resolution and the range end is
	// exclusive.
	end := time.Now().Truncate(time.Second).Add(time.Second)
	start := end.Add(-since)
	total, err := db.Summary(ctx, start, end)
	if err != nil {
		return err
	}
	group := db.SummaryByWorkflow
	if by == "user" {
		group = db.SummaryByUser
	}
	groups, err := group(ctx, start, end)
	if err != nil {
		return err
	}

	report := usageReport{Since: start, Total: total, Groups: groups}
	return out.print(report, func(w io.Writer) {
		fmt.Fprintf(w, "since %s\n", start.Format(time.RFC3339))
		printSummary(w, "total", total)
		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			printSummary(w, k, groups[k])
		}
	})
}

func printSummary(w io.Writer, label string, s *ledger.Summary) {
	fmt.Fprintf(w, "  %-20s runs=%d ok=%d failed=%d charged=%d time=%s\n",
		label, s.Runs, s.Succeeded, s.Failed, s.Charged, s.Duration.Round(time.Millisecond))
}

func printEntry(w io.Writer, e *ledger.Entry) {
	fmt.Fprintf(w, "request   %s\n", e.RequestID)
	fmt.Fprintf(w, "time      %s\n", e.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "user      %s\n", e.UserID)
	fmt.Fprintf(w, "workflow  %s\n", e.Workflow)
	fmt.Fprintf(w, "outcome   %s\n", e.Outcome)
	if e.Stage != "" {
		fmt.Fprintf(w, "stage     %s\n", e.Stage)
	}
	if e.Error != "" {
		fmt.Fprintf(w, "error     %s\n", e.Error)
	}
	if e.StoryID != 0 {
		fmt.Fprintf(w, "story     %d\n", e.StoryID)
	}
	fmt.Fprintf(w, "charged   %d\n", e.Charged)
	fmt.Fprintf(w, "duration  %s\n", e.Duration.Round(time.Millisecond))
}

// balanceReport is the JSON shape of the credit command.
type balanceReport struct {
	UserID  string `json:"userID"`
	Balance int64  `json:"balance"`
}

func runCredit(ctx context.Context, out output, stderr io.Writer, configPath string, args []string) error {
	opts, err := parseOptions(args, "user", "set")
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	userID, err := opts.require("user")
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}

	cfg, logger, err := setup(stderr, configPath)
	if err != nil {
		return err
	}
	st := newStore(cfg, logger)

	if v, ok := opts["set"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("credit: -set %q is not a number", v)
		}
		if err := st.SetCredit(ctx, userID, n); err != nil {
			return fmt.Errorf("set credit: %w", err)
		}
		logger.Info("credit balance set", "user_id", userID, "balance", n)
	}

	bal, err := st.Credit(ctx, userID)
	if err != nil {
		return fmt.Errorf("read credit: %w", err)
	}
	report := balanceReport{UserID: userID, Balance: bal}
	return out.print(report, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %d\n", userID, bal)
	})
}
