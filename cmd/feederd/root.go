package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"petfeeder/config"
	"petfeeder/internal/parse"
)

const defaultConfigPath = "./config/config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "feederd",
		Short:        "Pet feeder controller",
		Long:         "feederd keeps a pet feeder's food and water inventory in sync with the remote inventory service, validates manual refills and dispenses food on demand.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config (default $CONFIG_PATH or "+defaultConfigPath+")")

	load := func() (*config.Config, string, error) {
		return loadConfig(configPath)
	}

	rootCmd.AddCommand(
		newRunCmd(load),
		newStateCmd(load),
	)
	return rootCmd
}

// loadConfig resolves the config path, loads it and normalises the device serial.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load configuration from %s: %w", path, err)
	}

	serial, err := parse.MACAddress(cfg.Device.MACAddress)
	if err != nil {
		return nil, "", fmt.Errorf("device.mac_address: %w", err)
	}
	return cfg, serial, nil
}
