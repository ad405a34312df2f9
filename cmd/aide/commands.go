package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"aide/internal/assistant"
	"aide/internal/confirm"
	"aide/internal/config"
	"aide/internal/types"
)

func runSay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	text := strings.Join(args, " ")
	out, err := a.assistant.HandleCommand(ctx, text, 1.0)
	if err != nil {
		return err
	}
	return presentOutcome(ctx, out, bufio.NewScanner(os.Stdin))
}

func runItems(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	items := a.manager.Items()
	if len(items) == 0 {
		fmt.Println("No items yet.")
		return nil
	}
	for _, it := range items {
		fmt.Println(formatItem(it))
	}
	fmt.Printf("\n%d item(s)\n", len(items))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %s. Set llm.api_key (or the provider's env var) to get started.\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	shown := *cfg
	if shown.LLM.APIKey != "" {
		shown.LLM.APIKey = "<set>"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

// presentOutcome prints query results or walks the confirmation cards.
func presentOutcome(ctx context.Context, out *assistant.Outcome, in *bufio.Scanner) error {
	for _, nme := range out.Unresolved {
		fmt.Printf("No match: %v\n", nme)
	}

	if out.Operation == types.OpQuery {
		if len(out.Matches) == 0 {
			fmt.Println("Nothing matched.")
			return nil
		}
		for _, it := range out.Matches {
			fmt.Println(formatItem(it))
		}
		return nil
	}

	if out.Batch == nil {
		if len(out.Unresolved) == 0 {
			fmt.Println("Nothing to do.")
		}
		return nil
	}
	defer out.Batch.Stop()

	if out.Explanation != "" {
		fmt.Println(out.Explanation)
	}
	return promptCards(ctx, out.Batch, in)
}

// promptCards walks the batch card by card. Approval failures leave the
// card pending and move on; the user can rerun the command to retry.
func promptCards(ctx context.Context, batch *confirm.Batch, in *bufio.Scanner) error {
	cards := batch.Cards()
	for i, card := range cards {
		fmt.Printf("\n[%d/%d] %s\n", i+1, len(cards), describeCard(card))

		if autoYes {
			if err := batch.Approve(ctx, card.ID); err != nil {
				fmt.Printf("  failed: %v\n", err)
			}
			continue
		}

		fmt.Print("  approve? [y]es / [n]o / [a]ll / [s]kip rest: ")
		if !in.Scan() {
			batch.RejectAll()
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(in.Text())) {
		case "y", "yes":
			if err := batch.Approve(ctx, card.ID); err != nil {
				fmt.Printf("  failed (card stays pending): %v\n", err)
			}
		case "a", "all":
			if err := batch.ApproveAll(ctx); err != nil {
				fmt.Printf("  some cards failed: %v\n", err)
			}
			return summarize(batch)
		case "s", "skip":
			batch.RejectAll()
			return summarize(batch)
		default:
			if err := batch.Reject(card.ID); err != nil {
				fmt.Printf("  %v\n", err)
			}
		}
	}
	return summarize(batch)
}

func summarize(batch *confirm.Batch) error {
	approved, rejected, pending := 0, 0, 0
	for _, c := range batch.Cards() {
		switch c.State() {
		case confirm.StateApproved:
			approved++
		case confirm.StateRejected:
			rejected++
		default:
			pending++
		}
	}
	fmt.Printf("\n%d applied, %d rejected", approved, rejected)
	if pending > 0 {
		fmt.Printf(", %d pending (rerun to retry)", pending)
	}
	fmt.Println()
	return nil
}

func describeCard(card *confirm.Card) string {
	switch card.Operation {
	case types.OpCreate:
		c := card.Candidate
		s := fmt.Sprintf("create %s %q", c.Kind, c.Title)
		if c.DueDate != nil {
			s += " due " + c.DueDate.Format("Mon Jan 2 15:04")
		}
		if c.StartTime != nil {
			s += " at " + c.StartTime.Format("Mon Jan 2 15:04")
		}
		return s
	case types.OpEdit:
		return fmt.Sprintf("edit %s %q", card.Target.Kind, card.Target.Title)
	case types.OpDelete:
		return fmt.Sprintf("delete %s %q", card.Target.Kind, card.Target.Title)
	}
	return string(card.Operation)
}

func formatItem(it *types.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", it.Kind, it.Title)
	switch it.Kind {
	case types.KindEvent:
		if it.StartTime != nil {
			fmt.Fprintf(&sb, "  %s", it.StartTime.Format("Mon Jan 2 15:04"))
		}
		if it.Location != "" {
			fmt.Fprintf(&sb, " @ %s", it.Location)
		}
	case types.KindTask:
		if it.DueDate != nil {
			fmt.Fprintf(&sb, "  due %s", it.DueDate.Format("Mon Jan 2"))
		}
		if it.Completed {
			sb.WriteString("  (done)")
		} else if it.Priority != "" {
			fmt.Fprintf(&sb, "  [%s]", it.Priority)
		}
	case types.KindNote:
		if len(it.Tags) > 0 {
			fmt.Fprintf(&sb, "  #%s", strings.Join(it.Tags, " #"))
		}
	}
	if len(it.LinkedItems) > 0 {
		fmt.Fprintf(&sb, "  (%d linked)", len(it.LinkedItems))
	}
	return sb.String()
}
