package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asncountry/internal/config"
	"asncountry/internal/logger"
)

var version = "dev"

type globalFlags struct {
	configFile string
	logLevel   string
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := logger.InitLog(cfg.LogFile, cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "asncountry",
		Short:         "build ASN and prefix to country tables from registry and BGP data",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "DEBUG, INFO, WARNING or ERROR")

	root.AddCommand(registerBuildCommand(g))
	root.AddCommand(registerTransformCommand(g))
	root.AddCommand(registerLookupCommand(g))
	root.AddCommand(registerSummaryCommand(g))
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
