/*
Command deltadb is the administrative CLI for the embedded database
engine: it drives the ADP registry, object repositories, the blob
repository, and the ISAM key/value file from the shell, for use in
scripts and during development. A long-running application links the
packages directly; this binary exists for operators and for exercising
the engine without writing Go.
*/
package main

import (
	"fmt"
	"os"

	"github.com/hadronzoo/deltadb/pkg/log"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "deltadb",
	Short: "deltadb - embedded application-owned database engine",
	Long: `deltadb manages the on-disk state of an embedded, application-owned
database: the ADP schema registry, RAM and disk object repositories, the
blob repository, and the ISAM key/value file.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("deltadb version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Working directory for repository, blob and ISAM files")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(adpCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(blobCmd)
	rootCmd.AddCommand(isamCmd)
	rootCmd.AddCommand(mirrorCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func dataDir(cmd *cobra.Command) string {
	d, _ := cmd.Flags().GetString("data-dir")
	if d == "" {
		d, _ = rootCmd.PersistentFlags().GetString("data-dir")
	}
	return d
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory for a new application",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := dataDir(cmd)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		fmt.Printf("✓ Data directory ready: %s\n", dir)
		fmt.Println("Next: deltadb adp export --app <name> --schema <schema.yaml>")
		return nil
	},
}
