package main

import (
	"os"

	"github.com/litmuschaos/litmus-scenarios/pkg/environment"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	config := &environment.Config{}

	rootCmd := &cobra.Command{
		Use:           "scenario-runner",
		Short:         "Run declarative chaos scenarios against the local host",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			loaded, err := environment.GetENV(v)
			if err != nil {
				return err
			}
			*config = loaded
			log.Configure(config.LogLevel, config.LogFormat, nil)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(environment.LogLevel, "info", "log level: debug, info, warn or error")
	flags.String(environment.LogFormat, "text", "log format: text or json")
	flags.String(environment.ResultsDir, "results", "directory holding result files")
	flags.String(environment.ScenariosDir, "scenarios", "directory holding scenario files")

	rootCmd.AddCommand(
		newRunCmd(config),
		newValidateCmd(),
		newScenariosCmd(config),
		newResultsCmd(config),
	)
	return rootCmd
}
