package main

import (
	"fmt"
	"path/filepath"

	config "github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/visual-search/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/postgres"
	"github.com/spf13/cobra"
)

func NewPGImportCmd(log logger.Logger) *cobra.Command {
	var (
		dir     string
		version string
	)

	cmd := &cobra.Command{
		Use:   "pg-import",
		Short: "Import a snapshot's catalog and mapping into Postgres",
		Long: `Writes categories, products with their images and the embedding mapping of the
version into Postgres in a single transaction. The version's previous mapping is replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			products, err := readCatalogFile(filepath.Join(dir, catalogFile), log)
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}
			mappings, err := readMappingsFile(filepath.Join(dir, mappingFile))
			if err != nil {
				return fmt.Errorf("read mapping: %w", err)
			}

			pgCfg, err := config.LoadPGDB(log)
			if err != nil {
				return err
			}
			db, err := postgres.Connect(cmd.Context(), pgCfg)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			if err := db.RunMigrations(log); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}

			importUC := usecase.NewCatalogImportUC(
				pgdb.NewCategoryRepo(db.Pool),
				pgdb.NewProductRepo(db.Pool, pgdbConv.NewProductConverter()),
				pgdb.NewEmbeddingMapRepo(db.Pool, pgdbConv.NewProductEmbeddingConverter()),
				db.Pool,
				log,
			)

			res, err := importUC.Import(cmd.Context(), usecase.NewImportCatalogReq(version, products, mappings))
			if err != nil {
				return err
			}

			log.Infof("Imported version %s: %d products, %d categories, %d mappings",
				version, res.Products, res.Categories, res.Mappings)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "snapshot", "Build directory")
	cmd.Flags().StringVar(&version, "version", "", "Snapshot version")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}
