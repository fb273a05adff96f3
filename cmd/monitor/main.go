// Command monitor runs the VibeTea Monitor: it watches a developer
// workstation's on-disk assistant session artifacts, derives privacy-safe
// telemetry, signs it, and ships it to a Hub (spec §1, §5).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aaronbassett/vibetea/internal/config"
	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/privacy"
	"github.com/aaronbassett/vibetea/internal/sender"
	"github.com/aaronbassett/vibetea/internal/signing"
	"github.com/aaronbassett/vibetea/internal/track"
)

// exitConfig and exitRuntime match §4.7/§6's documented exit codes.
const (
	exitOK      = 0
	exitConfig  = 1
	exitRuntime = 2
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "export-key" {
		os.Exit(runExportKey())
	}
	os.Exit(runMonitor())
}

// runExportKey implements the export-key subcommand (§4.7): resolve the
// signing key exactly as the monitor would, then print only its Base64
// seed, newline-terminated, to stdout. All diagnostics go to stderr.
func runExportKey() int {
	cfg, err := config.LoadMonitorConfig()
	if err != nil {
		log.Printf("config error: %v", err)
		return exitConfig
	}

	key, source, err := signing.Resolve(cfg.PrivateKeyB64, cfg.KeyFilePath)
	if err != nil {
		log.Printf("key resolution error: %v", err)
		return exitConfig
	}
	log.Printf("resolved signing key from %s", source)

	fmt.Println(signing.ExportBase64Seed(key))
	return exitOK
}

func runMonitor() int {
	cfg, err := config.LoadMonitorConfig()
	if err != nil {
		log.Printf("config error: %v", err)
		return exitConfig
	}

	key, keySource, err := signing.Resolve(cfg.PrivateKeyB64, cfg.KeyFilePath)
	if err != nil {
		log.Printf("key resolution error: %v", err)
		return exitConfig
	}
	log.Printf("monitor: signing key resolved from %s", keySource)

	snd := sender.New(cfg.ServerURL, cfg.Source, signing.KeySigner{Key: key}, cfg.BufferSize, 0, 0)
	filter := privacy.New()

	emit := makeEmit(cfg.Source, filter, snd)

	sessionRoot := filepath.Join(cfg.AssistantRoot, "projects")
	historyPath := filepath.Join(cfg.AssistantRoot, "history.jsonl")
	todosRoot := filepath.Join(cfg.AssistantRoot, "todos")
	fileHistoryRoot := filepath.Join(cfg.AssistantRoot, "file-history")

	for _, dir := range []string{sessionRoot, todosRoot, fileHistoryRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("monitor: create %s: %v", dir, err)
			return exitRuntime
		}
	}

	state := track.NewStateMap()
	stats := track.NewStatsTracker(track.DefaultStatsInterval, emit)
	sessionTracker := track.NewSessionTracker(sessionRoot, state, emit)
	sessionTracker.SetObserver(stats.Observe)
	skillTracker := track.NewSkillTracker(historyPath, emit)
	todoTracker := track.NewTodoTracker(todosRoot, cfg.DebounceDelay, state, emit)
	fileHistoryTracker := track.NewFileHistoryTracker(fileHistoryRoot, emit)
	projectTracker := track.NewProjectTracker(sessionRoot, emit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go snd.Run(ctx)
	go stats.Run()
	go sessionTracker.Run()
	go skillTracker.Run()
	go todoTracker.Run()
	go fileHistoryTracker.Run()
	go projectTracker.Run()

	log.Printf("monitor: watching %s as source %q", cfg.AssistantRoot, cfg.Source)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("monitor: shutting down")

	stats.Stop()
	sessionTracker.Stop()
	skillTracker.Stop()
	todoTracker.Stop()
	fileHistoryTracker.Stop()
	projectTracker.Stop()
	cancel()
	snd.Stop()

	return exitOK
}

// makeEmit adapts a tracker's typed payload into the full pipeline: wrap
// it in an Event, run it through the privacy filter, and — unless the
// privacy pipeline drops it — enqueue it on the Sender.
func makeEmit(source string, filter *privacy.Filter, snd *sender.Sender) track.Emit {
	return func(payload event.Payload) {
		e, err := event.New(source, time.Now(), payload)
		if err != nil {
			log.Printf("monitor: construct event: %v", err)
			return
		}
		sanitized, ok := filter.Apply(e)
		if !ok {
			return
		}
		snd.Enqueue(sanitized)
	}
}
