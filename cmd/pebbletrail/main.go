package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/pebbletrail/bot"
	"github.com/hrygo/pebbletrail/engine"
	"github.com/hrygo/pebbletrail/geo"
	"github.com/hrygo/pebbletrail/internal/profile"
	"github.com/hrygo/pebbletrail/internal/version"
	"github.com/hrygo/pebbletrail/maprender"
	"github.com/hrygo/pebbletrail/ml"
	"github.com/hrygo/pebbletrail/server"
	"github.com/hrygo/pebbletrail/store"
	"github.com/hrygo/pebbletrail/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "pebbletrail",
	Short: `A Telegram bot that recognizes painted stones from photos and tracks their journeys.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Only load .env for direct binary execution (not when running as systemd service)
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			os.Exit(1)
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		defer storeInstance.Close()
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			os.Exit(1)
		}

		mlClient := ml.NewClient(instanceProfile)
		defer mlClient.Close()

		eng := engine.New(instanceProfile, engine.Options{
			Store:        storeInstance,
			Embedder:     mlClient,
			Preprocessor: mlClient,
			Detector:     mlClient,
			Geocoder:     geo.NewClient(instanceProfile),
			Renderer:     maprender.NewRenderer(maprender.Config{}),
		})
		defer eng.Close()

		tgBot, err := bot.New(instanceProfile, eng, storeInstance)
		if err != nil {
			slog.Error("failed to create bot", "error", err)
			os.Exit(1)
		}

		httpServer := server.NewServer(instanceProfile, storeInstance)

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM. SIGTERM is what
		// most process managers send.
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			slog.Info("shutdown signal received")
			cancel()
		}()

		printGreetings(instanceProfile)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return httpServer.Start(gctx)
		})
		g.Go(func() error {
			return tgBot.Start(gctx)
		})
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("server exited with error", "error", err)
		}
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of http server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of http server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("pebbletrail")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("pebbletrail %s started successfully!\n", p.Version)

	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Ops endpoints on port %d (/healthz, /metrics)\n", p.Port)
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
