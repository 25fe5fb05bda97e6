package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/botsapp/voicecall-go/pkg/call"
	"github.com/botsapp/voicecall-go/pkg/callstatus"
	"github.com/botsapp/voicecall-go/pkg/store"
)

func main() {
	// Parse flags
	var (
		baseURL    = flag.String("url", "", "Voice endpoint base URL (ws:// or wss://)")
		chatID     = flag.String("chat", "", "Chat ID to call")
		callID     = flag.String("call-id", "", "Outbound call intent ID (optional)")
		token      = flag.String("token", "", "Auth token")
		micPath    = flag.String("mic", "", "Path to a raw 16 kHz mono 16-bit PCM file used as the microphone")
		outPath    = flag.String("out", "", "Path to write received bot audio (raw 24 kHz mono 16-bit PCM)")
		tuningPath = flag.String("tuning", "", "Optional YAML tuning file")
		storeDir   = flag.String("store-dir", "", "Directory for the transcript store (optional)")
		statusURL  = flag.String("status-url", "", "Backend REST base URL for call status reporting (optional)")
		speaker    = flag.Bool("speaker", true, "Start with the speaker route enabled")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Load from environment if flags not set
	if *baseURL == "" {
		*baseURL = os.Getenv("BOTSAPP_VOICE_URL")
	}
	if *token == "" {
		*token = os.Getenv("BOTSAPP_TOKEN")
	}
	if *statusURL == "" {
		*statusURL = os.Getenv("BOTSAPP_API_URL")
	}

	if *baseURL == "" || *chatID == "" || *token == "" || *micPath == "" {
		fmt.Fprintf(os.Stderr, "Error: missing required configuration:\n")
		fmt.Fprintf(os.Stderr, "  -url (or BOTSAPP_VOICE_URL)\n")
		fmt.Fprintf(os.Stderr, "  -chat\n")
		fmt.Fprintf(os.Stderr, "  -token (or BOTSAPP_TOKEN)\n")
		fmt.Fprintf(os.Stderr, "  -mic\n")
		os.Exit(1)
	}

	if *logLevel == "info" {
		if ll := os.Getenv("LOG_LEVEL"); ll != "" {
			*logLevel = ll
		}
	}
	logger := setupLogger(*logLevel)

	tuning := call.DefaultTuning()
	if *tuningPath != "" {
		loaded, err := call.LoadTuning(*tuningPath)
		if err != nil {
			logger.Error("failed to load tuning", "path", *tuningPath, "error", err)
			os.Exit(1)
		}
		tuning = loaded
	}

	var st *store.Store
	if *storeDir != "" {
		var err error
		st, err = store.Open(store.Options{Dir: *storeDir, Logger: logger})
		if err != nil {
			logger.Error("failed to open transcript store", "dir", *storeDir, "error", err)
			os.Exit(1)
		}
		defer st.Close()
	}

	var status *callstatus.Client
	if *statusURL != "" {
		status = callstatus.NewClient(callstatus.Config{
			BaseURL: *statusURL,
			Token:   *token,
			Logger:  logger,
		})
	}

	recorder, err := newFileRecorder(*micPath, logger)
	if err != nil {
		logger.Error("failed to open microphone file", "path", *micPath, "error", err)
		os.Exit(1)
	}

	sess := call.NewSession(call.Config{
		BaseURL:        *baseURL,
		ChatID:         *chatID,
		CallID:         *callID,
		Token:          *token,
		Recorder:       recorder,
		NewPlayer:      func() call.Player { return newFilePlayer(*outPath, logger) },
		Router:         noopRouter{},
		Status:         status,
		Store:          st,
		SpeakerEnabled: *speaker,
		Tuning:         &tuning,
		Logger:         logger,
	})

	lines, cancelLines := sess.SubscribeTranscript()
	defer cancelLines()
	activities, cancelActs := sess.SubscribeActivity()
	defer cancelActs()

	logger.Info("starting call", "chat_id", *chatID, "call_id", *callID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		logger.Error("call failed to start", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				fmt.Printf("[%s] %s\n", line.Role, line.Text)
			case activity, ok := <-activities:
				if !ok {
					return
				}
				logger.Info("voice activity", "state", activity.String())
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, hanging up")
	case <-done:
		logger.Info("call ended by remote")
	}

	if err := sess.End(); err != nil {
		logger.Warn("hangup failed", "error", err)
	}
	<-done
}

// setupLogger creates a structured logger
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
