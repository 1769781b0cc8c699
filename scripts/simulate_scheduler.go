package main

// Replays a gesture sequence through the review scheduler and prints the
// transition table, for tuning SCHEDULER_TUNING_YAML without running the
// service:
//
//	go run scripts/simulate_scheduler.go like like loop:3 skip like save
//
// Loop gestures take their per-sitting count after a colon. Every gesture is
// applied at the moment the previous snapshot came due, so the table shows
// the interval curve a maximally punctual learner would produce.

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dewiapp/dewi-backend/internal/scheduler"
)

var defaultSequence = []string{"like", "like", "loop:3", "like", "skip", "like", "save"}

func main() {
	tokens := os.Args[1:]
	if len(tokens) == 0 {
		tokens = defaultSequence
	}

	gestures, err := parseSequence(tokens)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate_scheduler: %v\n", err)
		fmt.Fprintln(os.Stderr, "usage: simulate_scheduler [like|save|skip|loop:<count> ...]")
		os.Exit(1)
	}

	cfg, err := scheduler.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate_scheduler: load tuning: %v\n", err)
		os.Exit(1)
	}
	sched, err := scheduler.NewScheduler(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate_scheduler: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("tuning: first=%s skip=%s min=%s max=%s ease_start=%.2f like_bonus=%.2f skip_penalty=%.2f loop_threshold=%d\n\n",
		cfg.FirstInterval.Std(), cfg.SkipInterval.Std(), cfg.MinInterval.Std(), cfg.MaxInterval.Std(),
		cfg.EaseStart, cfg.LikeEaseBonus, cfg.SkipEasePenalty, cfg.LoopThreshold)

	start := time.Now().UTC().Truncate(time.Minute)
	snap := sched.NewSnapshot(start)

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "step\tgesture\ttransition\tease\tinterval\tdue after")
	for i, g := range gestures {
		// Review exactly when due. NewSnapshot is due immediately, so the
		// first gesture lands at the start instant.
		g.OccurredAt = snap.NextDueAt

		next, change, err := sched.Apply(snap, g)
		if err != nil {
			fmt.Fprintf(os.Stderr, "simulate_scheduler: step %d (%s): %v\n", i+1, g.Kind, err)
			os.Exit(1)
		}
		snap = next

		fmt.Fprintf(w, "%d\t%s\t%s -> %s\t%.2f\t%s\t%s\n",
			i+1, describe(g), change.From, change.To, snap.EaseFactor,
			humanDur(change.Interval), humanDur(snap.NextDueAt.Sub(start)))
	}
	w.Flush()
}

func parseSequence(tokens []string) ([]scheduler.Gesture, error) {
	gestures := make([]scheduler.Gesture, 0, len(tokens))
	for _, tok := range tokens {
		name, countStr, hasCount := strings.Cut(strings.TrimSpace(tok), ":")
		kind, err := scheduler.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", tok, err)
		}
		g := scheduler.Gesture{Kind: kind}
		if hasCount {
			if kind != scheduler.KindLoop {
				return nil, fmt.Errorf("token %q: only loop takes a count", tok)
			}
			n, err := strconv.Atoi(countStr)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("token %q: bad loop count", tok)
			}
			g.LoopCount = n
		} else if kind == scheduler.KindLoop {
			g.LoopCount = 1
		}
		gestures = append(gestures, g)
	}
	return gestures, nil
}

func describe(g scheduler.Gesture) string {
	if g.Kind == scheduler.KindLoop {
		return fmt.Sprintf("loop:%d", g.LoopCount)
	}
	return g.Kind.String()
}

// humanDur renders day-scale durations as days; Duration.String alone turns
// a month into an unreadable hour count.
func humanDur(d time.Duration) string {
	if d >= 24*time.Hour {
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
	return d.Round(time.Second).String()
}
