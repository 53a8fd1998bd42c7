// Command engine-smoketest sends one instruction through the inference
// engine's parse and plan endpoints and prints both results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/stake-plus/stratomai-agents/src/api/aiengine"
	"github.com/stake-plus/stratomai-agents/src/api/config"
)

var (
	urlFlag         = flag.String("url", "", "Engine base URL (defaults to AI_ENGINE_URL)")
	instructionFlag = flag.String("instruction", defaultInstruction, "Instruction to send")
	userFlag        = flag.String("user", "smoketest", "user_id sent with each request")
	modeFlag        = flag.String("mode", "pipeline", "pipeline|analyze|all")
	timeoutFlag     = flag.Duration("timeout", 45*time.Second, "Per-call timeout")
	maxLenFlag      = flag.Int("max-bytes", 1200, "Maximum bytes of output to print per response (0=unlimited)")
)

const defaultInstruction = "Send a summary of yesterday's sales figures to the regional managers every Monday at 9am"

func main() {
	log.SetFlags(0)
	flag.Parse()

	baseURL := *urlFlag
	if baseURL == "" {
		cfg, err := config.Load("")
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		baseURL = cfg.AIEngine.URL
	}
	client := aiengine.NewClient(baseURL, *timeoutFlag)
	fmt.Printf("=== %s ===\n", client.BaseURL())

	mode := strings.ToLower(strings.TrimSpace(*modeFlag))
	failed := false
	if mode == "pipeline" || mode == "all" {
		failed = runPipeline(client) || failed
	}
	if mode == "analyze" || mode == "all" {
		failed = runAnalyze(client) || failed
	}
	if failed {
		os.Exit(1)
	}
}

func runPipeline(client *aiengine.Client) (failed bool) {
	req := aiengine.InstructionRequest{Instruction: *instructionFlag, UserID: *userFlag}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()
	start := time.Now()
	intent, err := client.ParseInstruction(ctx, req)
	if err != nil {
		fmt.Printf("parse ❌ %v\n", err)
		return true
	}
	fmt.Printf("parse ✅ (%.1fs)\n%s\n", time.Since(start).Seconds(), pretty(intent))

	ctx, cancel = context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()
	start = time.Now()
	plan, err := client.GeneratePlan(ctx, aiengine.PlanRequest{
		Instruction: req.Instruction,
		UserID:      req.UserID,
		Context:     aiengine.PlanContext{ParsedIntent: intent},
	})
	if err != nil {
		fmt.Printf("plan ❌ %v\n", err)
		return true
	}
	fmt.Printf("plan ✅ (%.1fs)\n%s\n", time.Since(start).Seconds(), pretty(plan))
	return false
}

func runAnalyze(client *aiengine.Client) (failed bool) {
	req := aiengine.InstructionRequest{Instruction: *instructionFlag, UserID: *userFlag}
	calls := []struct {
		name string
		fn   func(context.Context, aiengine.InstructionRequest) (json.RawMessage, error)
	}{
		{"classify", client.ClassifyIntent},
		{"entities", client.ExtractEntities},
	}
	for _, call := range calls {
		ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
		start := time.Now()
		out, err := call.fn(ctx, req)
		cancel()
		if err != nil {
			fmt.Printf("%s ❌ %v\n", call.name, err)
			failed = true
			continue
		}
		fmt.Printf("%s ✅ (%.1fs)\n%s\n", call.name, time.Since(start).Seconds(), pretty(out))
	}
	return failed
}

func pretty(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return truncate(string(raw), *maxLenFlag)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	return truncate(string(b), *maxLenFlag)
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:limit]) + "...(truncated)"
}
