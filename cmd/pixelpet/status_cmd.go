package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/avelinecho/pixelpet/internal/logging"
)

// handleStatus prints the tracked sessions and streak counters.
func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print machine-readable JSON")
	fs.Parse(args)

	defer logging.Shutdown()

	eng, _, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pixelpet: %v\n", err)
		os.Exit(1)
	}

	snap := eng.Snapshot()

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(snap)
		return
	}

	if len(snap.Sessions) == 0 {
		fmt.Println("no active sessions")
	}
	for _, s := range snap.Sessions {
		marker := " "
		if s.ID == snap.SlotOwner {
			marker = "*"
		}
		age := time.Since(s.LastUpdateAt).Round(time.Second)
		status := string(s.State)
		if s.Stopped {
			status += " (stopped)"
		}
		fmt.Printf("%s %-12s %-14s %-40s %s ago\n", marker, s.Label, status, s.Detail, age)
	}

	c := snap.Counters
	fmt.Printf("\nstreak %d (best %d)  tool calls %d  errors %d\n",
		c.Streak, c.BestStreak, c.TotalToolCalls, c.TotalErrors)
	if c.Today.Date != "" {
		fmt.Printf("today: %d sessions, %s active\n",
			c.Today.Sessions, (time.Duration(c.Today.ActiveSeconds) * time.Second).String())
	}
	if !snap.UpdatedAt.IsZero() {
		fmt.Printf("last event: %s ago\n", time.Since(snap.UpdatedAt).Round(time.Second))
	}
}
