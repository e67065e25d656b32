package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"benchsuite/pkg/benchmark"
	"benchsuite/pkg/suitedb"
)

const defaultCreatedBy = "benchctl"

var (
	suitesTable  = ""
	queriesTable = ""
)

func suiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suite",
		Short: "Manage benchmark suites in the suite store",
	}
	cmd.PersistentFlags().StringVar(&suitesTable, "suites-table", suitedb.DefaultSuitesTable, "Table holding suite definitions")
	cmd.PersistentFlags().StringVar(&queriesTable, "queries-table", suitedb.DefaultQueriesTable, "Table holding benchmark queries")

	cmd.AddCommand(suiteInitCmd())
	cmd.AddCommand(suiteImportCmd())
	cmd.AddCommand(suiteShowCmd())
	cmd.AddCommand(suiteListCmd())
	cmd.AddCommand(suiteValidateCmd())
	return cmd
}

func suiteInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the suite store tables if missing",
		Args:  cobra.NoArgs,
		RunE: storeCommand(func(ctx context.Context, cmd *cobra.Command, dao *suitedb.Dao, args []string) error {
			tables := storeTables()
			if err := dao.EnsureTables(ctx, tables); err != nil {
				return fmt.Errorf("create tables: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Suite store ready (%s, %s)\n", tables.Suites, tables.Queries)
			return nil
		}),
	}
}

func suiteImportCmd() *cobra.Command {
	var createdBy string
	var ensure bool

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import suite documents into the suite store",
		Args:  cobra.MinimumNArgs(1),
		RunE: storeCommand(func(ctx context.Context, cmd *cobra.Command, dao *suitedb.Dao, args []string) error {
			tables := storeTables()
			if ensure {
				if err := dao.EnsureTables(ctx, tables); err != nil {
					return fmt.Errorf("create tables: %w", err)
				}
			}

			for _, file := range args {
				suite, err := readSuiteFile(file)
				if err != nil {
					return err
				}
				if err := suite.Validate(); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				if err := suitedb.Import(ctx, dao, tables, suite, createdBy); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}

				log.Info().Str("suite", suite.Info.Suite).Str("file", file).Int("queries", len(suite.Queries)).Msg("suite imported")
				fmt.Fprintf(cmd.OutOrStdout(), "Imported suite %s (%d queries)\n", suite.Info.Suite, len(suite.Queries))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&createdBy, "created-by", defaultCreatedBy, "Value recorded as suite author")
	cmd.Flags().BoolVar(&ensure, "init", false, "Create the suite store tables if missing")
	return cmd
}

func suiteShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print a stored suite with all queries of its query set",
		Args:  cobra.ExactArgs(1),
		RunE: storeCommand(func(ctx context.Context, cmd *cobra.Command, dao *suitedb.Dao, args []string) error {
			suite, err := suitedb.NewSupplier(dao, storeTables()).Load(ctx, args[0])
			if err != nil {
				return err
			}
			return writeSuite(cmd.OutOrStdout(), suite, output)
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml or json")
	return cmd
}

func suiteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored suites",
		Args:  cobra.NoArgs,
		RunE: storeCommand(func(ctx context.Context, cmd *cobra.Command, dao *suitedb.Dao, args []string) error {
			suites, err := dao.ListSuites(ctx, storeTables().Suites)
			if err != nil {
				return fmt.Errorf("list suites: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Suites: (%d)\n", len(suites))
			for _, name := range suites {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}),
	}
}

func suiteValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check suite documents without touching the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, file := range args {
				suite, err := readSuiteFile(file)
				if err != nil {
					return err
				}
				if err := suite.Validate(); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: suite %s is valid\n", file, suite.Info.Suite)
			}
			return nil
		},
	}
}

func readSuiteFile(file string) (benchmark.BenchmarkSuite, error) {
	var in io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return benchmark.BenchmarkSuite{}, fmt.Errorf("open suite file: %w", err)
		}
		defer f.Close()
		in = f
	}

	suite, err := benchmark.DecodeSuiteYAML(in)
	if err != nil {
		return suite, fmt.Errorf("%s: %w", file, err)
	}
	return suite, nil
}

func writeSuite(w io.Writer, suite benchmark.BenchmarkSuite, format string) error {
	switch format {
	case "yaml", "yml", "":
		return benchmark.EncodeSuiteYAML(w, suite)
	case "json":
		var buf bytes.Buffer
		if err := benchmark.EncodeSuiteYAML(&buf, suite); err != nil {
			return err
		}
		doc, err := yaml.YAMLToJSON(buf.Bytes())
		if err != nil {
			return fmt.Errorf("convert suite document: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", bytes.TrimSpace(doc))
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func storeTables() suitedb.Tables {
	return suitedb.Tables{Suites: suitesTable, Queries: queriesTable}.WithDefaults()
}

// readStoreConfig prefers BENCHCTL_STORE_DSN over the `store` section of the
// main configuration file.
func readStoreConfig() (suitedb.Config, error) {
	if dsn := viper.GetString("store_dsn"); dsn != "" {
		return suitedb.Config{Driver: viper.GetString("store_driver"), DSN: dsn}, nil
	}

	cfg, err := readConfig[suitedb.Config](&source, "store")
	if err != nil {
		return cfg, fmt.Errorf("read store config: %w", err)
	}
	return cfg, nil
}

func storeCommand(fn func(context.Context, *cobra.Command, *suitedb.Dao, []string) error) runE {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := readStoreConfig()
		if err != nil {
			return err
		}

		db, dialect, err := suitedb.Open(cfg)
		if err != nil {
			return fmt.Errorf("open suite store: %w", err)
		}
		defer db.Close()

		ctx := cmd.Context()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("connect suite store: %w", err)
		}
		return fn(ctx, cmd, suitedb.NewDao(db, dialect), args)
	}
}
