package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/tollgate/internal/brand"
	"grimm.is/tollgate/internal/config"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/metrics"
)

// RunOptions are the flags of the run command.
type RunOptions struct {
	ConfigFile string
	NoStart    bool   // leave the proxy stopped until started over the API
	LogLevel   string // overrides the config file when set
}

// loadConfig reads configFile. A missing file at the default location falls
// back to built-in defaults; an explicitly named file must exist.
func loadConfig(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && configFile == brand.DefaultConfigPath() {
		return config.Default(), nil
	}
	return nil, err
}

// RunDaemon runs tollgate in the foreground until SIGINT or SIGTERM.
func RunDaemon(opts RunOptions) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		if logCfg.Level, err = logging.ParseLevel(opts.LogLevel); err != nil {
			return err
		}
	}
	logger := logging.New(logCfg)
	logging.SetDefault(logger)

	logger.Info("Starting "+brand.Name, "version", brand.Version, "config", opts.ConfigFile)

	daemon, err := NewDaemon(cfg, logger, metrics.Get())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, !opts.NoStart); err != nil {
		return err
	}
	logger.Info(brand.Name + " exited.")
	return nil
}
