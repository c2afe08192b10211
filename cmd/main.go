package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-tutor/internal/app"
	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/data/db"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/prompt"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "tutor",
		Short:         "Learner state pipeline and prompt compiler for the coding tutor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration (missing file is ignored)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newCompileCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *logger.Logger, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCommand() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx, log, cfg)
			if err != nil {
				log.Error("Failed to initialize app", "error", err)
				log.Sync()
				return err
			}
			defer a.Close()
			return a.Serve(ctx, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", true, "also execute queued tasks in this process")
	return cmd
}

func newWorkerCommand() *cobra.Command {
	var drain bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Execute queued tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx, log, cfg)
			if err != nil {
				log.Error("Failed to initialize app", "error", err)
				log.Sync()
				return err
			}
			defer a.Close()

			if drain {
				n, err := a.Drain(ctx)
				if err != nil {
					return err
				}
				log.Info("Drained task queue", "tasks", n)
				return nil
			}
			return a.RunWorker(ctx)
		},
	}
	cmd.Flags().BoolVar(&drain, "drain", false, "run every ready task once and exit (polling backend only)")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()
			svc, err := db.Open(cfg.Database, log)
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := db.AutoMigrateAll(svc.DB()); err != nil {
				return err
			}
			log.Info("Migration complete", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func newCompileCommand() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a prompt from a JSON input document",
		Long: `Reads a compiler input (user_state, retrieved_context, conversation_history,
user_message, code_context, mode, content_title, content_json, test_results)
from --input or stdin and writes {system_prompt, messages} as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if inputPath != "" && inputPath != "-" {
				f, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var in prompt.Input
			if err := json.NewDecoder(r).Decode(&in); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}
			out := prompt.NewCompiler().Compile(in)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "input file, or - for stdin")
	return cmd
}
