// Package main provides the meshtalk daemon entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanvoice/meshtalk/internal/api"
	"github.com/lanvoice/meshtalk/internal/config"
	"github.com/lanvoice/meshtalk/internal/logging"
	"github.com/lanvoice/meshtalk/internal/mesh"
	"github.com/lanvoice/meshtalk/internal/metrics"
	"github.com/lanvoice/meshtalk/internal/util"
	"github.com/lanvoice/meshtalk/internal/version"
)

var (
	configFile  string
	displayName string
	controlPort int
	connectAddr string
	activeScan  bool

	initOutput string
	initForce  bool

	rootCmd = &cobra.Command{
		Use:   "meshtalk",
		Short: "Infrastructure-free voice mesh",
		Long:  `meshtalk runs a UDP mesh node that discovers nearby peers, relays traffic for them, and exchanges real-time audio without any central coordinator.`,
		RunE:  run,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "meshtalk.yaml", "config file path")
	rootCmd.Flags().StringVarP(&displayName, "name", "n", "", "display name (overrides config)")
	rootCmd.Flags().IntVarP(&controlPort, "port", "p", 0, "control port (overrides config)")
	rootCmd.Flags().StringVar(&connectAddr, "connect", "", "seed peer address (host or host:port)")
	rootCmd.Flags().BoolVar(&activeScan, "scan", false, "actively scan the local subnet for peers")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Full())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := config.LoadAndValidate(configFile, &cfg); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Println("Configuration is valid")
			return nil
		},
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(initOutput); err == nil && !initForce {
				return fmt.Errorf("%s already exists (use --force to overwrite)", initOutput)
			}
			if err := os.WriteFile(initOutput, []byte(config.SampleYAML), 0o600); err != nil {
				return fmt.Errorf("failed to write sample config: %w", err)
			}
			fmt.Printf("Wrote %s\n", initOutput)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "meshtalk.yaml", "output path")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing file")
	configCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if _, err := os.Stat(configFile); err == nil {
		if err := config.LoadAndValidate(configFile, &cfg); err != nil {
			return err
		}
	}

	if displayName != "" {
		cfg.Mesh.DisplayName = displayName
	}
	if cfg.Mesh.DisplayName == "" {
		host, _ := os.Hostname()
		cfg.Mesh.DisplayName = host
	}
	if controlPort != 0 {
		cfg.Mesh.ControlPort = controlPort
	}

	if err := logging.Setup(cfg.Logging); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.New()

	session, err := mesh.New(cfg.NodeID, cfg.Mesh, nil, m)
	if err != nil {
		return err
	}

	session.SetControlHandler(func(text, sourceID string) {
		slog.Info("control message", "from", sourceID, "text", text)
	})
	session.SetNodesChangedHandler(func(nodes []*mesh.Node) {
		slog.Info("mesh membership changed", "nodes", len(nodes))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := session.Stop(); err != nil && !errors.Is(err, mesh.ErrNotRunning) {
			slog.Warn("mesh stop failed", "error", err)
		}
	}()

	statusAPI := api.New(cfg.API, session, m)
	if err := statusAPI.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusAPI.Stop(shutdownCtx); err != nil {
			slog.Warn("status api stop failed", "error", err)
		}
	}()

	if connectAddr != "" {
		host, port, err := util.SplitHostPort(connectAddr)
		if err != nil {
			return fmt.Errorf("invalid --connect address: %w", err)
		}
		if port == 0 {
			port = cfg.Mesh.ControlPort
		}
		go func() {
			if err := session.AddDirectConnection(ctx, host, port); err != nil {
				slog.Warn("direct connect failed", "address", host, "error", err)
			}
		}()
	}

	if activeScan {
		go func() {
			if err := session.ScanAndConnect(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("active scan failed", "error", err)
			}
		}()
	}

	slog.Info("meshtalk running", "node_id", session.LocalID(), "name", cfg.Mesh.DisplayName)

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
