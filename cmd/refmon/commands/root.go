package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/editorialops/referee-monitor/internal/config"
	"github.com/editorialops/referee-monitor/internal/credentials"
	"github.com/editorialops/referee-monitor/internal/driver"
	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/monitoring"
	"github.com/editorialops/referee-monitor/internal/notifications"
	"github.com/editorialops/referee-monitor/internal/snapshot"
	"github.com/editorialops/referee-monitor/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "refmon",
	Short: "refmon runs and inspects referee monitoring from the command line.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(envFile); err != nil && verbose {
			fmt.Fprintf(os.Stderr, "no env file loaded: %v\n", err)
		}
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.WarnLevel)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load before reading configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// quietNotifier drops every notification
type quietNotifier struct{}

func (quietNotifier) SendRunReport(*models.RunResult) error { return nil }
func (quietNotifier) SendDeadlineAlert(*models.DeadlineAlert) error { return nil }

// openStore connects to the configured snapshot storage
func openStore(ctx context.Context, cfg *config.Config) (*snapshot.Store, error) {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	client, err := storage.New(initCtx, cfg.StorageAccount, cfg.StorageContainer, cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return snapshot.NewStore(client), nil
}

// newService wires a monitoring service the same way the server does
func newService(ctx context.Context, cfg *config.Config, notify bool) (*monitoring.Service, *snapshot.Store, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var notifier notifications.NotificationInterface = quietNotifier{}
	if notify {
		notifier = notifications.NewService(cfg)
	}

	factory := driver.NewChromeFactory(driver.ChromeOptions{
		Headless:  cfg.Headless,
		UserAgent: cfg.UserAgent,
		ExecPath:  cfg.ChromePath,
	})
	svc := monitoring.NewService(cfg, factory, credentials.NewEnvProvider(cfg.CredentialPrefix), store, notifier)
	return svc, store, nil
}

// loadConfig reads the configuration, narrowed to one platform when name is set
func loadConfig(name string) (*config.Config, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return cfg, nil
	}
	if cfg.Platforms, err = config.Select(cfg.Platforms, []string{name}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func dayCount(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
