package cmd

import (
	"JamFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the JamFM server",
	Long:  `Start the HTTP server hosting the jam session API, the audio cache and the dashboard event stream.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
