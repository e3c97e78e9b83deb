package main

import (
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/spf13/cobra"
)

// Имена артефактов внутри каталога версии.
const (
	indexFile   = "index.bin"
	mappingFile = "mapping.msgpack"
	catalogFile = "catalog.json"
)

func NewRootCmd(log logger.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "snapshotctl",
		Short:         "Build and publish retrieval snapshots",
		Long:          `Builds vector index artifacts, publishes snapshot versions and syncs them to Postgres and Qdrant.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.AddCommand(
		NewBuildCmd(log),
		NewPublishCmd(log),
		NewPGImportCmd(log),
		NewQdrantSyncCmd(log),
	)

	return rootCmd
}
