package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "vmgc",
	Short:         "Exercise and inspect the vmgc garbage-collected heap",
	Version:       fmt.Sprintf("%s (%s, %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return processGlobalFlags()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vmgc.yaml)")
	pf.String("capacity", "64KB", "heap capacity, e.g. 4096, 64KB or 1MB")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	pf.Bool("no-color", false, "disable colored output")
	pf.StringP("output", "o", "", "output format: json or text")
	pf.Bool("stress-collect", false, "collect before every allocation")
	viper.BindPFlags(pf)

	rootCmd.AddCommand(demoCmd, stressCmd, snapshotCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".vmgc")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("vmgc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fatal(err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}
