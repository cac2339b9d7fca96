package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/prodscope/prodscope/internal/llm"
	"github.com/prodscope/prodscope/internal/services/intel"
)

func main() {
	url := flag.String("url", "", "Competitor URL to analyze")
	timeout := flag.Duration("timeout", 15*time.Second, "Fetch timeout")
	skipTier2 := flag.Bool("skip-tier2", false, "Never escalate to browser rendering")
	enableTier2 := flag.Bool("tier2", false, "Enable browser rendering for JS-heavy pages")
	output := flag.String("output", "", "Output file for the JSON result (empty for stdout)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -url https://competitor.example/product")
		os.Exit(2)
	}

	_ = godotenv.Load()
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		color.Red("ANTHROPIC_API_KEY is not set")
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	generator, err := llm.NewClient(llm.Config{APIKey: apiKey}, logger)
	if err != nil {
		color.Red("Failed to create generation client: %v", err)
		os.Exit(1)
	}

	bar := progressbar.NewOptions(4,
		progressbar.OptionSetDescription("analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	pipelineOpts := []intel.PipelineOption{
		intel.WithProgress(func(phase string) {
			bar.Describe(phase)
			bar.Add(1)
		}),
	}

	if *enableTier2 {
		browser, err := intel.NewBrowserFetcher(true, logger)
		if err != nil {
			color.Yellow("Tier-2 browser unavailable, using tier-1 only: %v", err)
		} else {
			defer browser.Close()
			pipelineOpts = append(pipelineOpts, intel.WithTier2(browser))
		}
	}

	pipeline := intel.NewPipeline(intel.NewStaticFetcher(logger), generator, logger, pipelineOpts...)

	result, err := pipeline.Run(context.Background(), *url, intel.FetchOptions{
		Timeout:   *timeout,
		SkipTier2: *skipTier2,
	})
	if err != nil {
		color.Red("Analysis failed: %v", err)
		os.Exit(1)
	}

	// Raw page content is diagnostics, not output.
	result.Page = nil

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		color.Red("Failed to encode result: %v", err)
		os.Exit(1)
	}

	if *output != "" {
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			color.Red("Failed to write %s: %v", *output, err)
			os.Exit(1)
		}
		color.Green("Result written to %s", *output)
	} else {
		fmt.Println(string(data))
	}

	if result.Status == intel.StatusDegraded {
		color.Yellow("Completed with degradations:")
		for _, note := range result.Notes {
			color.Yellow("  - %s", note)
		}
	} else {
		color.Green("Analysis complete in %s", result.Duration.Round(time.Millisecond))
	}
}
