package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vertexdb/vertexdb/pkg/ast"
	"github.com/vertexdb/vertexdb/pkg/database"
)

var queryCmd = &cobra.Command{
	Use:   "query [database]",
	Short: "Run one pattern query against a database",
	Long: `Reads a single query from stdin (or -f) as a JSON-encoded
ast.Query, runs it against the named database, and prints every
resulting row or document as one JSON object per line.

This is a debugging and demonstration harness: vertexdb has no surface
query language here, only the ast.Query the translator already
consumes.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringP("file", "f", "", "read the query from this file instead of stdin")
	queryCmd.Flags().String("mode", "read", "transaction kind: read, write, or schema")
}

func runQuery(cmd *cobra.Command, args []string) error {
	mgr, err := openManager(cmd)
	if err != nil {
		return err
	}

	db, err := mgr.Open(args[0])
	if err != nil {
		return err
	}

	data, err := readQuerySource(cmd)
	if err != nil {
		return err
	}
	var q ast.Query
	if err := json.Unmarshal(data, &q); err != nil {
		return fmt.Errorf("parse query: %w", err)
	}

	kind, err := transactionKind(cmd)
	if err != nil {
		return err
	}

	tx := db.Begin(kind)
	result, err := tx.Query.Run(nil, q)
	if err != nil {
		tx.Close()
		return err
	}
	if kind == database.Read {
		tx.Close()
	} else if err := tx.Commit(); err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, row := range result.Rows {
		if err := encoder.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func readQuerySource(cmd *cobra.Command) ([]byte, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		return os.ReadFile(file)
	}
	return io.ReadAll(os.Stdin)
}

func transactionKind(cmd *cobra.Command) (database.TransactionKind, error) {
	mode, _ := cmd.Flags().GetString("mode")
	switch mode {
	case "read":
		return database.Read, nil
	case "write":
		return database.Write, nil
	case "schema":
		return database.Schema, nil
	default:
		return 0, fmt.Errorf("unknown transaction mode %q", mode)
	}
}
