package cmd

import (
	"voxpro/logger"
	"voxpro/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动VoxPro服务器",
	Long:  `启动HTTP服务器，提供键位分配API、实时推送、VoxPro控制台和静态站点`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	logger.Info("Starting VoxPro server...")
	return server.Start(cfg)
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
