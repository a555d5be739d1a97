package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "storehook/cmd/webhook-service/docs"
	"storehook/internal/config"
	"storehook/internal/constants"
	"storehook/internal/logger"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/logging"
)

var (
	configFile string
)

// @title           Storehook Webhook Service API
// @version         1.0
// @description     Receives App Store and Google Play subscription notifications, verifies them and publishes canonical events

// @BasePath  /

// @schemes   http https

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "webhook-service",
		Short:         "Subscription webhook verification and dispatch",
		Long:          "Webhook Service verifies store subscription notifications and publishes them as canonical events",
		RunE:          serveCmd().RunE,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required for serve and consume)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(consumeCmd())
	rootCmd.AddCommand(verifyCmd())

	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(ModeServe)
		},
	}
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Dispatch raw deliveries from the kafka input topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(ModeConsume)
		},
	}
}

func runApp(mode Mode) error {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return err
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logging.WithServiceName(ctx, constants.ServiceName)

	log.InfowCtx(ctx, "Starting Webhook Service", "mode", mode)

	app := NewApp(cfg, log, mode)
	if err := app.Initialize(ctx); err != nil {
		log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
		_ = app.Shutdown(context.Background())
		return err
	}

	log.InfowCtx(ctx, "Webhook service running", "mode", mode)
	runErr := app.Run(ctx)

	if err := app.Shutdown(context.Background()); err != nil {
		log.ErrorwCtx(ctx, "Shutdown failed", "error", err)
	}

	if runErr != nil && runErr != context.Canceled {
		log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
		return runErr
	}
	log.InfowCtx(ctx, "Shutdown complete")
	return nil
}

func verifyCmd() *cobra.Command {
	var (
		file     string
		platform string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify and classify one payload file",
		Long:  "Runs a stored payload through the same verification and classification as the receiver and prints the canonical event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer log.Sync()

			raw, err := readPayload(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			dispatcher, _ := buildDispatcher(cfg, log)

			ctx := logging.WithServiceName(cmd.Context(), constants.ServiceName)
			if platform != "" {
				event, err := dispatcher.DispatchTo(ctx, platform, raw)
				return printResult(cmd.OutOrStdout(), event, err)
			}
			event, err := dispatcher.Dispatch(ctx, raw)
			return printResult(cmd.OutOrStdout(), event, err)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", `Payload file ("-" reads stdin)`)
	cmd.Flags().StringVar(&platform, "platform", "", "Skip detection and use this platform (appstore, googleplay)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readPayload(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return raw, nil
}

func printResult(out io.Writer, event interface{}, err error) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if err != nil {
		_ = enc.Encode(apperrors.ToErrorResponse(err))
		return err
	}
	return enc.Encode(event)
}
