package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	profilePath string

	rootCmd = &cobra.Command{
		Use:   "hwserial",
		Short: "Talk to UART channels described by a port profile",
		Long:  "hwserial opens the channels listed in a YAML port profile and reads, writes or routes debug output through them.",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&profilePath, "profile", "p", "ports.yaml", "port profile")
	rootCmd.AddCommand(listCmd, catCmd, sendCmd, debugCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("hwserial: %v", err)
	}
}
