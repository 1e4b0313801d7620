// @title ETL Pipeline Manager API
// @version 1.0
// @description Admin API for ETL jobs, data sources, transformation rules, runs, and alerts.
// @BasePath /api/v1
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "etl-manager",
		Short: "ETL pipeline manager service",
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
