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

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/filemirrorsync/filemirrorsync/internal/server"
	"github.com/filemirrorsync/filemirrorsync/internal/version"
)

const configFileName = "config"

var loadedConfig *server.Config

var rootCmd = &cobra.Command{
	Use:     "filemirrorsync-server",
	Short:   "FileMirrorSync Server CLI",
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
		if err := loadedConfig.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true

		s, err := server.New(loadedConfig)
		if err != nil {
			return err
		}

		defer slog.Info("bye!")
		return s.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("addr", "b", server.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().String("inbound-root", "", "Root of the published dataset tree")
	rootCmd.Flags().String("temp-root", "", "Root of the upload staging tree")
	rootCmd.Flags().String("delete-strategy", "Disabled", "Delete policy: Disabled or LwwDelete")
	rootCmd.Flags().Int("max-parallel-uploads", 4, "Max concurrent CompleteUpload calls")
	rootCmd.PersistentFlags().StringP("config", "c", "", "FileMirrorSync server config file")
}

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

// loadConfig mirrors the teacher's cmd/client/main.go loadConfig shape: an
// optional .env file, then a viper config file search path, then flag
// binding, then SYNC_-prefixed environment overrides.
func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	_ = godotenv.Load()

	if cmd.Flag("config").Changed {
		viper.SetConfigFile(cmd.Flag("config").Value.String())
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join(home, ".filemirrorsync"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	viper.BindPFlag("inbound_root", cmd.Flags().Lookup("inbound-root"))
	viper.BindPFlag("temp_root", cmd.Flags().Lookup("temp-root"))
	viper.BindPFlag("delete_strategy", cmd.Flags().Lookup("delete-strategy"))
	viper.BindPFlag("max_parallel_uploads", cmd.Flags().Lookup("max-parallel-uploads"))

	viper.SetEnvPrefix("SYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfg := &server.Config{
		Addr:               viper.GetString("addr"),
		InboundRoot:        viper.GetString("inbound_root"),
		TempRoot:           viper.GetString("temp_root"),
		DeleteStrategy:     viper.GetString("delete_strategy"),
		MaxParallelUploads: viper.GetInt("max_parallel_uploads"),
		SessionGCInterval:  viper.GetDuration("session_gc_interval"),
		RateLimit:          viper.GetString("rate_limit"),
		ApiKeys: server.ApiKeysConfig{
			DatasetKeys: viper.GetStringMapString("api_keys.dataset_keys"),
			ClientKeys:  viper.GetStringMapString("api_keys.client_keys"),
		},
	}
	if cfg.MaxParallelUploads == 0 {
		cfg.MaxParallelUploads = 4
	}
	if cfg.SessionGCInterval == 0 {
		cfg.SessionGCInterval = time.Hour
	}
	return cfg, nil
}
