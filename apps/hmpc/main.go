//
// main.go
//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// The hmpc command runs the checked multiplication protocol and the
// matrix engine with in-process parties, or as one party over TCP,
// and prints a profiling report.
package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hmpc",
	Short: "Honest-majority MPC protocol engine",
	Long: `hmpc runs the MAC-checked multiplication protocol and the matrix
multiplication engine between in-process parties.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs a session and prints the profiling report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromConfig(viper.GetViper())
		if err != nil {
			return err
		}
		return run(opts, os.Stdout)
	},
}

var partyCmd = &cobra.Command{
	Use:   "party",
	Short: "Runs one party of a session over TCP",
	Long: `party runs one party of a session. All parties must be started with
the same peer list, session ID, and session options.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		peers := v.GetStringSlice("peers")
		v.Set("parties", len(peers))
		opts, err := optionsFromConfig(v)
		if err != nil {
			return err
		}
		session, err := uuid.Parse(v.GetString("session"))
		if err != nil {
			return err
		}
		return runNetwork(opts, v.GetInt("id"), peers, session, os.Stdout)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		jww.ERROR.Printf("hmpc: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLog)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false,
		"verbose output")

	flags := rootCmd.PersistentFlags()
	flags.StringP("scheme", "s", "rep3", "secret sharing scheme: rep3, shamir")
	flags.Int("rows", 4, "rows of the left matrix")
	flags.Int("inner", 4, "columns of the left matrix")
	flags.Int("cols", 4, "columns of the right matrix")
	flags.String("matmul", "auto", "matrix multiplication: auto, plain, he")
	flags.String("generator", "protocol",
		"matrix triple generator: protocol, bgv")
	flags.Int("check-batch", 0, "MAC check batch size")
	flags.Uint64("check-bytes", 0, "MAC check communication threshold")
	flags.Int("shuffle", 16, "number of shuffled values")

	runCmd.Flags().IntP("parties", "n", 3, "number of parties")

	partyCmd.Flags().Int("id", 0, "party ID")
	partyCmd.Flags().StringSlice("peers", nil,
		"addresses of all parties in party ID order")
	partyCmd.Flags().String("session", "", "session ID shared by all parties")

	for _, name := range []string{
		"verbose", "scheme", "rows", "inner", "cols", "matmul",
		"generator", "check-batch", "check-bytes", "shuffle",
	} {
		handleBindingError(viper.BindPFlag(name, flags.Lookup(name)), name)
	}
	handleBindingError(viper.BindPFlag("parties",
		runCmd.Flags().Lookup("parties")), "parties")
	for _, name := range []string{"id", "peers", "session"} {
		handleBindingError(viper.BindPFlag(name,
			partyCmd.Flags().Lookup(name)), name)
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(partyCmd)
}

func handleBindingError(err error, flag string) {
	if err != nil {
		jww.FATAL.Panicf("Error on binding flag \"%s\":%+v", flag, err)
	}
}

// initConfig reads the config file if one was given.
func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetEnvPrefix("hmpc")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		jww.FATAL.Panicf("Unable to read config file (%s): %s", cfgFile, err)
	}
}

// initLog sets the logging threshold.
func initLog() {
	jww.SetStdoutThreshold(jww.LevelWarn)
	if viper.GetBool("verbose") {
		jww.SetStdoutThreshold(jww.LevelDebug)
	}
}
