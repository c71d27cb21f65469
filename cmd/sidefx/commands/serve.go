package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/sidefx/internal/app"
	"go.trai.ch/sidefx/internal/core/domain"
)

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [reports.json]",
		Short: "Browse a report file over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := domain.ReportFileName
			if len(args) == 1 {
				path = args[0]
			}
			port, _ := cmd.Flags().GetInt("port")
			return c.app.Serve(cmd.Context(), app.ServeOptions{
				Path: path,
				Port: port,
				Ready: func(addr string) {
					cmd.Printf("serving %s on http://%s\n", path, addr)
				},
			})
		},
	}
	cmd.Flags().IntP("port", "p", -1, "Port to listen on (defaults to $PORT, then 8000)")
	return cmd
}
