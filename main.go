package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bosley/soundanno/annotation"
	"github.com/bosley/soundanno/library"
	"github.com/bosley/soundanno/player"
	"github.com/bosley/soundanno/progress"
	annoserv "github.com/bosley/soundanno/server"
)

const progressDBName = "progress.sqlite"

func main() {
	dataDir := flag.String("data-dir", "", "Application data directory (default: $SOUND_ANNOTATION_DATA_DIR or the OS config dir)")
	addr := flag.String("addr", annoserv.DefaultAddr, "Bridge listen address (host:port)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	playFile := flag.String("play", "", "Play a WAV file, or the point range of a stored label with -label")
	playLabel := flag.Bool("label", false, "Treat -play as a stored label file name")
	start := flag.Float64("start", 0, "Playback start in seconds")
	end := flag.Float64("end", math.Inf(1), "Playback end in seconds")
	deviceID := flag.Int("device", player.DefaultDevice, "Audio output device ID to use")
	listDevices := flag.Bool("list-devices", false, "List available audio output devices")
	scanDir := flag.String("scan", "", "List audio files under a directory that still need annotating")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *listDevices {
		devices, err := player.ListOutputDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio output devices:")
		for _, device := range devices {
			fmt.Printf("[%d] %s\n", device.Index, device.Name)
			fmt.Printf("    Max Output Channels: %d\n", device.MaxOutputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	dir, err := resolveDataDir(*dataDir)
	if err != nil {
		slog.Error("Failed to resolve application data directory", "error", err)
		os.Exit(1)
	}
	cfg, err := annotation.NewConfig(dir)
	if err != nil {
		slog.Error("Invalid application data directory", "error", err, "path", dir)
		os.Exit(1)
	}
	progressDB := filepath.Join(dir, progressDBName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if *playFile != "" {
		if err := play(ctx, cfg, *playFile, *playLabel, annotation.Range{Start: *start, End: *end}, *deviceID); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	if *scanDir != "" {
		if err := scan(ctx, dir, progressDB, *scanDir); err != nil {
			slog.Error("Failed to scan directory", "error", err, "path", *scanDir)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Failed to create application data directory", "error", err, "path", dir)
		os.Exit(1)
	}

	server, err := annoserv.New(annoserv.Config{
		Addr:       *addr,
		Token:      os.Getenv("SOUND_ANNOTATION_TOKEN"),
		Annotation: cfg,
		ProgressDB: progressDB,
	})
	if err != nil {
		slog.Error("Failed to initialize bridge", "error", err)
		os.Exit(1)
	}

	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := server.Stop(stopCtx); err != nil {
			slog.Error("Failed to stop bridge", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		slog.Error("Bridge failed", "error", err)
		return
	}

	slog.Debug("Program exiting")
}

// resolveDataDir picks the data directory once: flag, then environment,
// then the OS default.
func resolveDataDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("SOUND_ANNOTATION_DATA_DIR"); env != "" {
		return env, nil
	}
	return annotation.DefaultDataDir()
}

func play(ctx context.Context, cfg annotation.Config, target string, isLabel bool, r annotation.Range, device int) error {
	path := target
	if isLabel {
		recorder := annotation.NewRecorder(cfg)
		label, ok, err := recorder.FindLabel(target)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no label for %s", target)
		}
		if path, err = cfg.MediaPath(label.File); err != nil {
			return err
		}
		r = label.Point
	}
	return player.Play(ctx, path, r, device)
}

func scan(ctx context.Context, dataDir, progressDB, root string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create application data directory: %w", err)
	}

	store, err := progress.Open(progressDB)
	if err != nil {
		return err
	}
	defer store.Close()

	files, err := library.Scan(root)
	if err != nil {
		return err
	}
	pending, err := library.NewQueue(files, store).Pending(ctx)
	if err != nil {
		return err
	}

	for _, f := range pending {
		fmt.Println(f)
	}
	slog.Info("Scan complete", "found", len(files), "pending", len(pending))
	return nil
}
