package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joho/godotenv"

	"github.com/filemirrorsync/filemirrorsync/internal/client"
	"github.com/filemirrorsync/filemirrorsync/internal/utils"
	"github.com/filemirrorsync/filemirrorsync/internal/version"
)

const configFileName = "config"

var loadedConfig *client.Config

var rootCmd = &cobra.Command{
	Use:     "filemirrorsync",
	Short:   "FileMirrorSync Client CLI",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		loadedConfig = cfg
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(loadedConfig)
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true
		once, _ := cmd.Flags().GetBool("once")

		defer slog.Info("bye!")
		if once {
			return c.RunOnce(cmd.Context())
		}
		return c.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().String("dataset-id", "", "Dataset id scoping this sync")
	rootCmd.Flags().String("client-id", "", "Client id reported to the server")
	rootCmd.Flags().String("api-key", "", "Pre-shared API key")
	rootCmd.Flags().StringP("server", "s", "", "FileMirrorSync server base URL")
	rootCmd.Flags().StringP("root", "r", "", "Local directory to mirror")
	rootCmd.Flags().String("state-file", client.DefaultStateFile, "Path to the client state file")
	rootCmd.Flags().Int64("chunk-size", 8*1024*1024, "Upload chunk size in bytes")
	rootCmd.Flags().Int("max-parallel-uploads", 2, "Max concurrent per-file uploads")
	rootCmd.Flags().Bool("enable-delete", false, "Mirror server-side deletes of files missing from the manifest")
	rootCmd.Flags().Duration("interval", 30*time.Second, "Interval between sync rounds")
	rootCmd.Flags().Bool("once", false, "Run a single sync round and exit")
	rootCmd.PersistentFlags().StringP("config", "c", "", "FileMirrorSync client config file")
}

func main() {
	logFile := filepath.Join(client.DefaultDataDir, "filemirrorsync.log")
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	multiLogHandler := utils.NewMultiLogHandler(stdoutHandler, fileHandler)
	slog.SetDefault(slog.New(multiLogHandler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

// loadConfig mirrors the teacher's cmd/client/main.go loadConfig: an
// optional .env file, then a viper config file search path, then flag
// binding, then SYNC_-prefixed environment overrides.
func loadConfig(cmd *cobra.Command) (*client.Config, error) {
	_ = godotenv.Load()

	if cmd.Flag("config").Changed {
		viper.SetConfigFile(cmd.Flag("config").Value.String())
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(client.DefaultDataDir)
		viper.SetConfigName(configFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("dataset_id", cmd.Flags().Lookup("dataset-id"))
	viper.BindPFlag("client_id", cmd.Flags().Lookup("client-id"))
	viper.BindPFlag("api_key", cmd.Flags().Lookup("api-key"))
	viper.BindPFlag("server_base_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("root_path", cmd.Flags().Lookup("root"))
	viper.BindPFlag("state_file", cmd.Flags().Lookup("state-file"))
	viper.BindPFlag("chunk_size", cmd.Flags().Lookup("chunk-size"))
	viper.BindPFlag("max_parallel_uploads", cmd.Flags().Lookup("max-parallel-uploads"))
	viper.BindPFlag("enable_delete", cmd.Flags().Lookup("enable-delete"))
	viper.BindPFlag("interval", cmd.Flags().Lookup("interval"))

	viper.SetEnvPrefix("SYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfg := &client.Config{
		DatasetID:          viper.GetString("dataset_id"),
		ClientID:           viper.GetString("client_id"),
		ApiKey:             viper.GetString("api_key"),
		ServerBaseUrl:      viper.GetString("server_base_url"),
		RootPath:           viper.GetString("root_path"),
		StateFile:          viper.GetString("state_file"),
		ChunkSize:          viper.GetInt64("chunk_size"),
		MaxParallelUploads: viper.GetInt("max_parallel_uploads"),
		EnableDelete:       viper.GetBool("enable_delete"),
		Interval:           viper.GetDuration("interval"),
	}
	return cfg, nil
}
