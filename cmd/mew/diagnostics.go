package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mewdb/mew/internal/obs"
)

var listenFlag string

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Serve this process's Prometheus metrics over HTTP",
	RunE:  runDiagnostics,
}

func init() {
	diagnosticsCmd.Flags().StringVar(&listenFlag, "listen", ":9090", "address to serve /metrics on")
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	obs.NewMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	fmt.Fprintf(cmd.OutOrStdout(), "serving metrics at http://%s/metrics\n", listenFlag)
	return http.ListenAndServe(listenFlag, mux)
}
