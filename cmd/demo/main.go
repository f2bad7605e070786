// Terminal host for the widget runtime: a stdin-driven conversation loop
// that renders snapshots as they arrive. Useful for exercising the full
// pipeline against a running simulator without a browser.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ashureev/copilot-widget/internal/config"
	"github.com/ashureev/copilot-widget/internal/session"
	"github.com/ashureev/copilot-widget/internal/transcript"
	"github.com/ashureev/copilot-widget/internal/widget"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	recorder, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := recorder.Close(); closeErr != nil {
			logger.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	ctrl := widget.NewFromConfig(cfg.Widget, widget.Options{
		OnRender: printSnapshot,
		Recorder: recorder,
		Logger:   logger,
	})
	defer func() {
		if shutdownErr := ctrl.Shutdown(); shutdownErr != nil {
			logger.Error("Failed to shut down widget", "error", shutdownErr)
		}
	}()

	ctx := context.Background()
	if err := ctrl.Open(ctx); err != nil {
		logger.Error("Failed to open widget", "error", err)
		os.Exit(1)
	}

	fmt.Printf("connected as session %s\n", ctrl.SessionID())
	if qs := ctrl.SuggestedQuestions(); len(qs) > 0 {
		fmt.Println("suggested questions:")
		for _, q := range qs {
			fmt.Printf("  - %s\n", q)
		}
	}
	fmt.Println("type a question, /new for a fresh chat, /quit to exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/new":
			ctrl.StartNewChat()
			fmt.Printf("new chat, session %s\n", ctrl.SessionID())
			continue
		}

		if err := ctrl.SendMessage(ctx, line); err != nil {
			if errors.Is(err, widget.ErrBusy) {
				fmt.Println("still answering the previous question")
				continue
			}
			fmt.Printf("send failed: %v\n", err)
		}
	}
}

func printSnapshot(snap session.Snapshot) {
	if snap.IsStreaming && snap.HTML == "" {
		fmt.Println("[assistant is thinking...]")
		return
	}
	if snap.HTML == "" {
		return
	}
	fmt.Printf("\n%s\n", snap.HTML)
	if !snap.IsStreaming && len(snap.Citations) > 0 {
		fmt.Println("sources:")
		for _, c := range snap.Citations {
			fmt.Printf("  - %s\n", c.SourceLocator)
		}
	}
}
