package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"glexport/internal/pipeline"
	"glexport/pkg/checkpoint"
	"glexport/pkg/config"
	"glexport/pkg/lock"
	"glexport/pkg/logger"
	"glexport/pkg/output"
	"glexport/pkg/progress"
	"glexport/pkg/ui"
)

var (
	// Export command flags
	outputDir    string
	fileNaming   string
	compression  string
	concurrency  int
	resumeRun    bool
	forceRestart bool
)

// exportCmd consumes write requests and progress events as JSON lines on
// stdin. The crawler that talks to the upstream API runs as a separate
// producer and pipes its batches in; this process owns the durable output
// directory, the locks, and the resume state.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Persist a stream of record batches with locking and resume state",
	Long: `Read a stream of JSON lines on standard input and persist it safely.

Each input line is one message:
  {"write": {"hierarchy": ["group","project"], "resource_type": "issues",
             "records": [...], "append": true, "step": "group/project/issues"}}
  {"progress": {"step": "group/project/issues", "completed": 120, "done": true}}

Records land under the output root as newline-delimited JSON, one file per
hierarchy area and resource type, each write protected by an advisory file
lock. Progress events update the checkpoint so an interrupted run can be
resumed with --resume.`,
	Example: `  # Persist a crawl, resuming past completed steps
  crawler --group mygroup | glexport export --resume

  # Custom layout and compression
  crawler | glexport export --output ./dump --file-naming kebab-case --compression gzip`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport()
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output root directory")
	exportCmd.Flags().StringVar(&fileNaming, "file-naming", "", "file naming convention (lowercase, kebab-case, snake_case)")
	exportCmd.Flags().StringVar(&compression, "compression", "", "compression (none, gzip, brotli)")
	exportCmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent resource writers")
	exportCmd.Flags().BoolVar(&resumeRun, "resume", false, "skip steps completed in a previous run")
	exportCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard any existing checkpoint")
}

// message is one stdin line from the producer
type message struct {
	Write    *pipeline.WriteRequest  `json:"write,omitempty"`
	Progress *pipeline.ProgressEvent `json:"progress,omitempty"`
}

func runExport() error {
	flags := map[string]interface{}{
		"log-level": logLevel,
		"progress":  !quiet,
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if fileNaming != "" {
		flags["file-naming"] = fileNaming
	}
	if compression != "" {
		flags["compression"] = compression
	}
	if concurrency > 0 {
		flags["concurrency"] = concurrency
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()

	naming, err := output.ParseNaming(cfg.Output.FileNaming)
	if err != nil {
		return err
	}
	comp, err := output.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return err
	}

	flock := lock.New(lock.Options{
		Timeout:    cfg.Lock.Timeout,
		RetryDelay: cfg.Lock.RetryDelay,
		MaxRetries: cfg.Lock.MaxRetries,
	})
	resolver := output.NewResolver(cfg.Output.RootDir, naming)
	writer := output.NewWriter(resolver, flock, output.WriterOptions{
		Pretty:      cfg.Output.PrettyPrint,
		Compression: comp,
	})

	store := checkpoint.NewStore(cfg.Checkpoint.Path)
	if forceRestart {
		if err := store.Delete(); err != nil {
			return err
		}
	}
	doc := store.Load()
	if !resumeRun && !forceRestart && store.Exists() {
		log.Warn("existing checkpoint found, pass --resume to skip finished steps or --force-restart to discard it")
	}
	if !resumeRun {
		doc = checkpoint.NewDocument()
	}

	var renderer progress.Renderer
	if cfg.Export.Progress {
		renderer = ui.NewProgressRenderer()
	}
	tracker := progress.NewTracker(cfg.Checkpoint.SnapshotPath, cfg.Checkpoint.FlushInterval, renderer)
	tracker.Start()
	defer tracker.Stop()

	sink := pipeline.NewSink(writer, tracker, store, doc, cfg.Export.Concurrency)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	writes := make(chan pipeline.WriteRequest, cfg.Export.Concurrency*2)
	events := make(chan pipeline.ProgressEvent, cfg.Export.Concurrency)

	go func() {
		defer close(writes)
		defer close(events)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var msg message
			if err := json.Unmarshal(line, &msg); err != nil {
				log.WarnWithFields("skipping malformed input line", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			switch {
			case msg.Write != nil:
				select {
				case writes <- *msg.Write:
				case <-ctx.Done():
					return
				}
			case msg.Progress != nil:
				select {
				case events <- *msg.Progress:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			log.WithError(err).Error("input stream failed")
		}
	}()

	log.InfoWithFields("export started", map[string]interface{}{
		"root":        cfg.Output.RootDir,
		"naming":      string(naming),
		"compression": string(comp),
		"resume":      resumeRun,
	})

	if err := sink.Run(ctx, writes, events); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("export failed")
		return fmt.Errorf("export failed: %w", err)
	}
	if ctx.Err() != nil {
		log.Warn("export interrupted, resume with --resume")
	}
	return nil
}
