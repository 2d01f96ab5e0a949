package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/spf13/cobra"
)

// version can be overridden at build time via -ldflags "-X main.version=1.2.3".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "agentcrew",
	Short: "A small team of LLM agents that plan, build and review together",
	Long: color.CyanString("agentcrew") + ` runs a configurable roster of agents against your goals.

A lead agent splits each goal into subtasks, teammates execute them with
tools, a reviewer checks the work and the lead compiles the result.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agentcrew %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func printStatus(w io.Writer, symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}
