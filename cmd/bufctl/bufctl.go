package main

import (
	"fmt"
	"os"

	"proxybuf/pkg/bufconfig"
	"proxybuf/pkg/bufrepl"
	"proxybuf/pkg/chanbuf"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configFile, logLevel string
	root := &cobra.Command{
		Use:   "bufctl",
		Short: "Inspect and edit a proxy channel buffer interactively",
		Long: `bufctl loads buffer settings from a config file and opens a prompt on a
single pooled buffer. Type help at the prompt for the command list.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 0. settings from the config file, defaults otherwise
			config := bufconfig.Default()
			if configFile != "" {
				var err error
				if config, err = bufconfig.ParseConfig(configFile); err != nil {
					return err
				}
			}
			logrus.SetLevel(config.LogLevel)
			if cmd.Flags().Changed("log-level") {
				level, err := logrus.ParseLevel(logLevel)
				if err != nil {
					return errors.Wrap(err, "--log-level")
				}
				logrus.SetLevel(level)
			}

			// 1. buffers come from a pool sized by the config
			pool := chanbuf.NewPool(config.BufSize)
			pool.Prefill(config.Pool)
			logrus.WithFields(logrus.Fields{
				"bufsize":    config.BufSize,
				"maxrewrite": config.MaxRewrite,
				"realign":    config.Realign,
			}).Info("buffer pool ready")

			session := bufrepl.NewSession(config, pool)
			defer session.Close()

			// 2. run the repl
			return bufrepl.BufRepl(session).Run("> ")
		},
	}
	root.Flags().StringVar(&configFile, "config", "", "buffer config file")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level, overrides the config file")
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
