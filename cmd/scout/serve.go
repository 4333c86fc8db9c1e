package main

import (
	"github.com/spf13/cobra"

	"github.com/communitysignals/scout/config"
	srv "github.com/communitysignals/scout/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server and background scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	return serve
}
