package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kwindow/realtime"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of kwindow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kwindow version %s\n", strings.TrimSpace(realtime.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
