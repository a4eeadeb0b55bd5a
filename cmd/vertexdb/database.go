package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertexdb/vertexdb/pkg/database"
)

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Manage databases under the configured data directory",
}

var databaseCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new, empty database",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatabaseCreate,
}

var databaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every database under the data directory",
	RunE:  runDatabaseList,
}

var databaseDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Permanently delete a database",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatabaseDelete,
}

func init() {
	databaseCmd.AddCommand(databaseCreateCmd)
	databaseCmd.AddCommand(databaseListCmd)
	databaseCmd.AddCommand(databaseDeleteCmd)
}

func openManager(cmd *cobra.Command) (*database.Manager, error) {
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return nil, err
	}
	return database.NewManager(dataDir)
}

func runDatabaseCreate(cmd *cobra.Command, args []string) error {
	mgr, err := openManager(cmd)
	if err != nil {
		return err
	}
	if _, err := mgr.Create(args[0]); err != nil {
		return err
	}
	fmt.Printf("database %q created\n", args[0])
	return nil
}

func runDatabaseList(cmd *cobra.Command, args []string) error {
	mgr, err := openManager(cmd)
	if err != nil {
		return err
	}
	names, err := mgr.ListOnDisk()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runDatabaseDelete(cmd *cobra.Command, args []string) error {
	mgr, err := openManager(cmd)
	if err != nil {
		return err
	}
	if err := mgr.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("database %q deleted\n", args[0])
	return nil
}
