// Command onboard runs the onboarding wizard in a terminal against a running
// onboarding API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/riskibarqy/learnhub-onboarding/external/onboardapi"
	"github.com/riskibarqy/learnhub-onboarding/internal/config"
	"github.com/riskibarqy/learnhub-onboarding/internal/interfaces/tui"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

type options struct {
	envFile     string
	baseURL     string
	token       string
	initialStep int
	timeout     time.Duration
	logFile     string
	logLevel    string
}

func newRootCommand() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Complete LearnHub onboarding from the terminal",
		Long: `Walks through the ten onboarding steps: date of birth, profile
questions and a profile picture. Answers are saved to your LearnHub
account as you go; finishing opens the dashboard.`,
		Example: `  # Start from the first step
  onboard --token $LEARNHUB_TOKEN

  # Resume at the goal question against a local API
  onboard --api-base-url http://localhost:8080 --initial-step 3`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before flags are resolved")
	flags.StringVar(&opts.baseURL, "api-base-url", "", "onboarding API base URL (env ONBOARD_API_BASE_URL)")
	flags.StringVar(&opts.token, "token", "", "LearnHub access token (env LEARNHUB_TOKEN)")
	flags.IntVar(&opts.initialStep, "initial-step", 0, "step to open first, 1-10")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for each API call")
	flags.StringVar(&opts.logFile, "log-file", "", "append JSON logs to this file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

func run(ctx context.Context, opts options) error {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return err
	}
	if opts.initialStep < 0 || opts.initialStep > 10 {
		return fmt.Errorf("--initial-step must be between 1 and 10")
	}
	baseURL := firstNonEmpty(opts.baseURL, os.Getenv("ONBOARD_API_BASE_URL"), "http://localhost:8080")
	token := firstNonEmpty(opts.token, os.Getenv("LEARNHUB_TOKEN"))
	if token == "" {
		return fmt.Errorf("an access token is required: pass --token or set LEARNHUB_TOKEN")
	}

	logger, err := logging.NewJSONFile(opts.logFile, logging.ParseLevel(opts.logLevel))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logging.SetDefault(logger)

	client := onboardapi.NewClient(onboardapi.ClientConfig{
		BaseURL:     baseURL,
		AccessToken: token,
		Timeout:     opts.timeout,
		Logger:      logger,
	})

	model := tui.New(ctx, client, tui.Options{
		InitialStep: opts.initialStep,
		CallTimeout: opts.timeout,
	})
	final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("run onboarding: %w", err)
	}

	if result, ok := final.(tui.Model); ok && result.Completed() {
		fmt.Println("Onboarding complete. Welcome to your LearnHub dashboard.")
		return nil
	}
	fmt.Println("Onboarding not finished. Answers already saved stay on your account.")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
