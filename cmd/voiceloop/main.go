package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voiceloop/internal/bootstrap"
	"voiceloop/internal/config"
	"voiceloop/internal/domain"
	"voiceloop/internal/logging"
	"voiceloop/internal/session"
	"voiceloop/internal/status"
)

var (
	version     = "0.1.0"
	cfgFile     string
	serverFlag  string
	sessionFlag string
	modeFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "voiceloop",
	Short: "Voiceloop terminal client",
	Long:  `Voiceloop - hands-free voice dialogue client for the speech pipeline`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the capture loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoop()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and print resolved settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Server:      %s\n", cfg.ServerURL)
		fmt.Printf("Mode:        %s\n", cfg.Mode)
		fmt.Printf("Sample rate: %d Hz (batch), %d Hz (stream)\n", cfg.Audio.BatchSampleRate, cfg.Audio.StreamSampleRate)
		fmt.Printf("Input:       %s via %s\n", cfg.Audio.InputDevice, cfg.Audio.InputFormat)
		fmt.Printf("Playback:    %t\n", cfg.Playback.Enabled)
		if cfg.Metrics.Listen != "" {
			fmt.Printf("Metrics:     %s\n", cfg.Metrics.Listen)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("voiceloop v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/voiceloop/voiceloop.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "pipeline server URL")
	runCmd.Flags().StringVar(&sessionFlag, "session", "", "resume a specific session identifier")
	runCmd.Flags().StringVar(&modeFlag, "mode", "", "transport mode: batch or stream")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}
	if sessionFlag != "" {
		cfg.Session = sessionFlag
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runLoop() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logging.Init(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)

	presenter := status.NewPresenter(os.Stdout)
	services, err := bootstrap.Build(cfg, presenter)
	if err != nil {
		presenter.SessionError(domain.ErrorCodeStartup, err.Error())
		return err
	}

	if services.Debug != nil {
		if err := services.Debug.Start(); err != nil {
			return fmt.Errorf("failed to start debug listener: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = services.Debug.Stop(ctx)
		}()
	}

	controller := services.Controller

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	intCh := make(chan os.Signal, 1)
	signal.Notify(intCh, syscall.SIGINT, syscall.SIGTERM)
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	presenter.Note(domain.StatusDefault,
		fmt.Sprintf("voiceloop v%s | %s | %s mode | session %s", version, cfg.ServerURL, cfg.Mode, controller.Status().SessionID))
	presenter.Note(domain.StatusDefault,
		"Press Enter to talk, Enter again to send. Commands: ask <text>, discard, end, status, quit.")
	presenter.StateChanged(domain.CaptureStateIdle, domain.ReasonReady)

	for {
		select {
		case <-intCh:
			_ = controller.End(ctx)
			return nil
		case <-hupCh:
			// SIGHUP parks the capture without ending the conversation.
			_ = controller.Stop(ctx, domain.StopSuspend)
		case line, ok := <-lines:
			if !ok {
				_ = controller.End(ctx)
				return nil
			}
			if quit := handleLine(ctx, controller, presenter, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, controller *session.Controller, presenter *status.Presenter, line string) bool {
	command := parseControl(line)
	switch command.kind {
	case controlToggle:
		if err := controller.Toggle(ctx); err != nil {
			reportControlError(presenter, err)
		}
	case controlAsk:
		if err := controller.Ask(ctx, command.arg); err != nil {
			reportControlError(presenter, err)
		}
	case controlDiscard:
		if err := controller.Discard(); err != nil && !errors.Is(err, domain.ErrNoActiveTurn) {
			reportControlError(presenter, err)
		}
	case controlEnd:
		_ = controller.End(ctx)
	case controlStatus:
		printStatus(presenter, controller.Status())
	case controlQuit:
		_ = controller.End(ctx)
		return true
	default:
		presenter.Note(domain.StatusDefault,
			"Commands: Enter toggles capture, 'ask <text>', 'discard', 'end', 'status', 'quit'")
	}
	return false
}

// reportControlError surfaces refusals the controller does not route
// through the status sink. Everything else was already presented.
func reportControlError(presenter *status.Presenter, err error) {
	switch {
	case errors.Is(err, domain.ErrConversationEnded):
		presenter.Note(domain.StatusDefault, "Conversation just ended; one moment before a new one can start.")
	case errors.Is(err, domain.ErrTurnActive):
		presenter.Note(domain.StatusDefault, "A capture turn is already in flight.")
	}
}

func printStatus(presenter *status.Presenter, snapshot domain.Status) {
	message := fmt.Sprintf("state=%s session=%s ended=%t", snapshot.State, snapshot.SessionID, snapshot.Ended)
	if snapshot.TurnID != "" {
		message += " turn=" + snapshot.TurnID
	}
	if snapshot.LastError != "" {
		message += " lastError=" + string(snapshot.LastError)
	}
	presenter.Note(domain.StatusDefault, message)
}
