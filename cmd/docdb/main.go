// Command docdb is a small CLI over a docdb store: put, get, delete and
// query documents, run similarity searches and inspect store state.
//
// Configuration resolves in order: flags, environment (DOCDB_*), then a
// docdb.yaml config file in the working directory or ~/.config/docdb.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/docdb"
	"github.com/hupe1980/docdb/document"
)

var rootCmd = &cobra.Command{
	Use:   "docdb",
	Short: "Embedded document store with secondary indexes and vector search",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
			viper.SetConfigFile(cfg)
		} else {
			viper.SetConfigName("docdb")
			viper.AddConfigPath(".")
			if home, err := os.UserHomeDir(); err == nil {
				viper.AddConfigPath(filepath.Join(home, ".config", "docdb"))
			}
		}
		viper.SetEnvPrefix("docdb")
		viper.AutomaticEnv()

		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if cfg, _ := cmd.Flags().GetString("config"); cfg != "" || !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config: %w", err)
			}
		}
		return nil
	},
}

func openStore() (*docdb.Store, error) {
	backend, err := docdb.ParseBackend(viper.GetString("backend"))
	if err != nil {
		return nil, err
	}
	strategy, err := docdb.ParseStrategy(viper.GetString("strategy"))
	if err != nil {
		return nil, err
	}

	opts := []docdb.Option{
		docdb.WithPath(viper.GetString("path")),
		docdb.WithBackend(backend),
		docdb.WithStrategy(strategy),
	}
	if viper.GetBool("compression") {
		opts = append(opts, docdb.WithCompression())
	}
	if viper.GetBool("verbose") {
		opts = append(opts, docdb.WithLogger(docdb.NewTextLogger(slog.LevelDebug)))
	}

	return docdb.Open(opts...)
}

var putCmd = &cobra.Command{
	Use:   "put <table> <json-document>",
	Short: "Store a document, allocating an id unless --id is given",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := args[0]

		var doc document.Document
		if err := json.Unmarshal([]byte(args[1]), &doc); err != nil {
			return fmt.Errorf("invalid document JSON: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		id, _ := cmd.Flags().GetUint64("id")
		var stored document.Document
		if id > 0 {
			stored, err = store.Put(table, id, doc)
		} else {
			stored, err = store.Save(table, doc, nil)
		}
		if err != nil {
			return err
		}

		return printJSON(stored)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <table> <id>",
	Short: "Fetch a document by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		doc, err := store.FindByID(args[0], id)
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <table> <id>",
	Short: "Delete a document by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Destroy(args[0], id); err != nil {
			return err
		}
		fmt.Printf("deleted %s/%d\n", args[0], id)
		return nil
	},
}

var findCmd = &cobra.Command{
	Use:   "find <table>",
	Short: "List documents, optionally filtered by --where",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var conds docdb.Conditions
		if where, _ := cmd.Flags().GetString("where"); where != "" {
			if err := json.Unmarshal([]byte(where), &conds); err != nil {
				return fmt.Errorf("invalid conditions JSON: %w", err)
			}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		q := store.Query(args[0])
		if len(conds) > 0 {
			q = q.Where(conds)
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			q = q.Limit(limit)
		}
		if offset, _ := cmd.Flags().GetInt("offset"); offset > 0 {
			q = q.Offset(offset)
		}
		if order, _ := cmd.Flags().GetString("order"); order != "" {
			if field, ok := strings.CutPrefix(order, "-"); ok {
				q = q.OrderDesc(field)
			} else {
				q = q.Order(order)
			}
		}

		results, err := q.ToList()
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := printJSON(r.Document); err != nil {
				return err
			}
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <table> <field>",
	Short: "Similarity search over a vector collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}
		query, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.RebuildVectors(args[0], args[1]); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		results, err := store.SearchSimilar(args[0], args[1], query, limit, threshold)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%.4f\t", r.Similarity)
			if err := printJSON(r.Document); err != nil {
				return err
			}
		}
		return nil
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		tables, err := store.Tables()
		if err != nil {
			return err
		}
		for _, table := range tables {
			fmt.Println(table)
		}
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <table>",
	Short: "Drop a table with its indexes and metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DropTable(args[0]); err != nil {
			return err
		}
		fmt.Printf("dropped %s\n", args[0])
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <table>",
	Short: "Rebuild the secondary indexes of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Reindex(args[0]); err != nil {
			return err
		}
		fmt.Printf("reindexed %s\n", args[0])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats()
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		vec = append(vec, float32(val))
	}
	return vec, nil
}

func printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default docdb.yaml in . or ~/.config/docdb)")
	flags.String("path", "./docdb_data", "data directory")
	flags.String("backend", string(docdb.BackendFile), "storage backend (file|badger)")
	flags.String("strategy", string(docdb.StrategyBrute), "vector strategy (brute|flat|cover)")
	flags.Bool("compression", false, "compress stored records with zstd")
	flags.BoolP("verbose", "v", false, "debug logging")

	_ = viper.BindPFlag("path", flags.Lookup("path"))
	_ = viper.BindPFlag("backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("strategy", flags.Lookup("strategy"))
	_ = viper.BindPFlag("compression", flags.Lookup("compression"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))

	putCmd.Flags().Uint64("id", 0, "explicit document id (0 allocates)")
	findCmd.Flags().String("where", "", "conditions as JSON")
	findCmd.Flags().Int("limit", 0, "maximum results")
	findCmd.Flags().Int("offset", 0, "results to skip")
	findCmd.Flags().String("order", "", "order field (prefix with - for descending)")
	searchCmd.Flags().String("vector", "", "query vector as comma-separated floats")
	searchCmd.Flags().Int("limit", 10, "maximum results")
	searchCmd.Flags().Float64("threshold", 0, "minimum similarity")

	rootCmd.AddCommand(putCmd, getCmd, deleteCmd, findCmd, searchCmd, tablesCmd, dropCmd, reindexCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
