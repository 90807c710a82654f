package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version = "dev"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error: ")+err.Error())
		os.Exit(1)
	}
}

// NewRootCommand builds the operator CLI. Flags can also be set through
// EKSPORYUK_OPS_* environment variables.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("EKSPORYUK_OPS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "eksporyuk-ops",
		Short:         "Operator tools for payment fulfillment",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if v.GetBool("no-color") {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Deadline for the whole command")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	_ = v.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = v.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.AddCommand(newReplayCommand(v))
	rootCmd.AddCommand(newCreditsCommand(v))
	rootCmd.AddCommand(newOutboxCommand(v))

	return rootCmd
}
