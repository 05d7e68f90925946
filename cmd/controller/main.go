package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/response-guard/internal/chemistry"
	"github.com/danielpatrickdp/response-guard/internal/evalbus"
	"github.com/danielpatrickdp/response-guard/internal/facts"
	"github.com/danielpatrickdp/response-guard/internal/guard"
	"github.com/danielpatrickdp/response-guard/internal/inference"
	"github.com/danielpatrickdp/response-guard/internal/metrics"
	"github.com/danielpatrickdp/response-guard/internal/pipeline"
	"github.com/danielpatrickdp/response-guard/internal/provenance"
	"github.com/danielpatrickdp/response-guard/internal/state"
)

// #region main
func main() {
	dbPath := envOr("GUARD_DB", "response_guard.db")
	personaName := envOr("GUARD_PERSONA", "")

	store, err := state.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if err := provenance.Init(store.DB()); err != nil {
		log.Fatalf("failed to init provenance: %v", err)
	}

	// Resume chemistry from the last committed version
	current, err := store.GetCurrent()
	if err != nil {
		log.Println("No active chemistry found, creating baseline...")
		current, err = store.CreateInitial()
		if err != nil {
			log.Fatalf("failed to create initial chemistry: %v", err)
		}
	}
	levels := current.Levels

	client, err := inference.NewClient(inference.DefaultConfig())
	if err != nil {
		log.Fatalf("inference setup: %v", err)
	}

	bus := evalbus.New()
	issues := metrics.NewIssueLog()
	ledger := metrics.NewPenaltyLedger()
	bridge := chemistry.NewBridge(bus, chemistry.DefaultConfig())

	guardConfig := guard.DefaultConfig()
	if os.Getenv("GUARD_STRICT_FACTS") == "true" {
		guardConfig.StrictFacts = true
	}
	pipe := pipeline.New(guard.New(guardConfig), bus, issues, pipeline.DefaultConfig())

	fmt.Println("Response Guard controller ready.")
	fmt.Printf("  DB: %s | guard enabled: %v\n", dbPath, pipe.Enabled())
	fmt.Println("Type a prompt (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if prompt == "quit" || prompt == "exit" {
			break
		}

		turnID := uuid.New().String()

		snapshot := facts.Builder{
			Dopamine:       &levels.Dopamine,
			Serotonin:      &levels.Serotonin,
			Norepinephrine: &levels.Norepinephrine,
		}.Build()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		initial, err := client.Generate(ctx, guardConfig.BaseTemp, prompt)
		if err != nil {
			cancel()
			log.Printf("inference error: %v", err)
			continue
		}

		result := pipe.CheckResponseWithRetry(ctx, initial, pipeline.CheckOptions{
			Facts:       snapshot,
			PersonaName: personaName,
			Infer:       client.InferenceFunc(prompt),
		})
		cancel()

		fmt.Printf("\n%s\n\n", result.Response)

		if err := provenance.LogDecision(store.DB(), provenance.DecisionEntry{
			TurnID:        turnID,
			Action:        result.GuardResult.Action,
			Issues:        result.GuardResult.Issues,
			RetryCount:    result.RetriesUsed,
			ResponseChars: len(result.Response),
		}); err != nil {
			log.Printf("provenance error: %v", err)
		}

		// Fold the turn's guard events into chemistry and persist. Dopamine
		// penalties count against the guard stage's daily budget; once
		// spent, negative deltas stop landing until the next day.
		delta := bridge.CalculateDelta()
		if delta.Source == chemistry.SourceAggregated || delta.Source == chemistry.SourceEvent {
			penalty := -delta.Dopamine
			if penalty > 0 && !ledger.CanApply(evalbus.StageGuard, penalty) {
				log.Printf("[LEDGER] guard stage daily cap reached (%.1f remaining), skipping penalty",
					ledger.Remaining(evalbus.StageGuard))
			} else {
				if penalty > 0 {
					ledger.Record(evalbus.StageGuard, penalty)
				}
				levels = chemistry.ApplyDelta(levels, delta)
				if _, err := store.Commit(levels, delta); err != nil {
					log.Printf("chemistry commit error: %v", err)
				}
			}
		}

		trust := metrics.TrustIndex(bus)
		fmt.Printf("[%s] action=%s retries=%d trust=%.3f dopamine=%.1f\n",
			turnID[:8], result.GuardResult.Action, result.RetriesUsed, trust.Index, levels.Dopamine)
	}
}
// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
// #endregion helpers
