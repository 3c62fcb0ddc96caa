package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vision-inspector/config"
	"vision-inspector/internal/container"
	"vision-inspector/internal/logger"
)

var runFlags struct {
	configPath string
	jobFile    string
	mode       string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the inspection controller",
	Long: `Run loads the configuration, builds the camera, tool graph, result queue
and optional TCP/MQTT/Telegram channels, then runs until SIGINT or SIGTERM.

Settings are read from the YAML file given by --config and from
INSPECTOR_* environment variables (e.g. INSPECTOR_CAMERA_MODE=external).`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.configPath, "config", "c", "", "Path to YAML config file")
	f.StringVar(&runFlags.jobFile, "job", "", "Job file (JSON/YAML), overrides pipeline.job_file")
	f.StringVar(&runFlags.mode, "mode", "", "Capture mode (off, live, trigger, external), overrides camera.mode")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(runFlags.configPath)
	if err != nil {
		return err
	}
	if runFlags.jobFile != "" {
		cfg.Pipeline.JobFile = runFlags.jobFile
	}
	if runFlags.mode != "" {
		cfg.Camera.Mode = runFlags.mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log := logger.Init(cfg.Logging, cfg.Service.Name)
	c, err := container.New(cfg, log)
	if err != nil {
		log.Error("startup failed", logger.ErrorFields("container", err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("inspector stopped with error", logger.ErrorFields("run", err))
		return err
	}
	log.Info("inspector stopped")
	return nil
}
