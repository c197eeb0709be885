package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/cache"
	"github.com/MimeLyc/subtitle-batch-translator/internal/config"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/persistence"
	"github.com/MimeLyc/subtitle-batch-translator/internal/service"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

type translateOptions struct {
	target       string
	mode         string
	output       string
	instructions string
	glossary     string
	concurrency  int
	streaming    bool
	batches      bool
	json         bool
}

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var opts translateOptions

	cmd := &cobra.Command{
		Use:   "translate <file.srt>",
		Short: "Translate one SRT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgOpts, err := opts.configOptions(cmd)
			if err != nil {
				return err
			}
			cfg, err := ctx.loadConfig(cfgOpts...)
			if err != nil {
				return err
			}
			return runTranslate(cmd, cfg, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.target, "target", "t", "", "Target language tag, e.g. de or pt-BR")
	flags.StringVarP(&opts.mode, "mode", "m", "", "Request format: plain, timestamp or tagged")
	flags.StringVarP(&opts.output, "output", "o", "", "Output path (default <name>.<lang>.srt next to the input)")
	flags.StringVar(&opts.instructions, "instructions", "", "Extra instructions for the translator")
	flags.StringVar(&opts.glossary, "glossary", "", "Glossary JSON file (default: nearest glossary.<src>-<dst>.json)")
	flags.IntVar(&opts.concurrency, "concurrency", 1, "Batches translated in parallel (1-5)")
	flags.BoolVar(&opts.streaming, "streaming", false, "Stream partial output while translating")
	flags.BoolVar(&opts.batches, "batches", false, "Also print per-batch statistics")
	flags.BoolVar(&opts.json, "json", false, "Print the report as JSON")
	return cmd
}

// configOptions turns explicitly set flags into config overrides.
func (o translateOptions) configOptions(cmd *cobra.Command) ([]config.Option, error) {
	var ret []config.Option
	if o.target != "" {
		tag, err := language.Parse(o.target)
		if err != nil {
			return nil, fmt.Errorf("invalid --target %q: %w", o.target, err)
		}
		ret = append(ret, config.WithTargetLanguage(tag))
	}
	if o.mode != "" {
		mode, err := format.ParseMode(o.mode)
		if err != nil {
			return nil, err
		}
		ret = append(ret, config.WithFormatMode(mode))
	}
	if cmd.Flags().Changed("concurrency") {
		ret = append(ret, config.WithConcurrency(o.concurrency))
	}
	if cmd.Flags().Changed("streaming") {
		ret = append(ret, config.WithStreaming(o.streaming))
	}
	return ret, nil
}

func runTranslate(cmd *cobra.Command, cfg *config.Config, input string, opts translateOptions) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store cache.Store
	if cfg.Cache.Size > 0 && cfg.Cache.Persistent {
		if db, err := openStore(cfg); err != nil {
			log.Warn("Persistent cache unavailable, using memory only: %v", err)
		} else {
			defer db.Close()
			store = db
		}
	}

	engine, err := service.NewEngine(cfg, store)
	if err != nil {
		return err
	}
	runner := service.NewRunner(cfg, engine)

	progress := newProgressPrinter(cmd.ErrOrStderr())
	report, err := runner.TranslateFile(signalCtx, service.FileRequest{
		InputPath:    input,
		OutputPath:   opts.output,
		Instructions: opts.instructions,
		GlossaryPath: opts.glossary,
		OnProgress:   progress.Update,
	})
	progress.Done()
	if err != nil {
		service.LogError(err)
		return err
	}

	out := cmd.OutOrStdout()
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	report.Render(out)
	if opts.batches {
		report.RenderBatches(out)
	}
	return nil
}

func openStore(cfg *config.Config) (*persistence.SQLiteStore, error) {
	if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return persistence.NewSQLiteStore(cfg.DBPath())
}
