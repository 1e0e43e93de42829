package main

import (
	"fmt"

	"github.com/hadronzoo/deltadb/pkg/adp"
	"github.com/hadronzoo/deltadb/pkg/schema"
	"github.com/spf13/cobra"
)

var adpCmd = &cobra.Command{
	Use:   "adp",
	Short: "Manage an application's ADP registry",
}

var adpExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Build a registry from a schema file and export its ADP profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _ := cmd.Flags().GetString("app")
		schemaPath, _ := cmd.Flags().GetString("schema")
		if app == "" || schemaPath == "" {
			return fmt.Errorf("--app and --schema are required")
		}

		sf, err := loadSchemaFile(schemaPath)
		if err != nil {
			return err
		}
		r, err := buildRegistry(app, sf)
		if err != nil {
			return err
		}
		if err := r.Export(); err != nil {
			return fmt.Errorf("export profile: %w", err)
		}
		fmt.Printf("✓ Exported %s\n", adp.ProfilePath(app))
		for _, c := range r.Classes() {
			fmt.Printf("  class %-20s id=%d members=%d\n", c.Name, c.Number, len(c.Members()))
		}
		return nil
	},
}

var adpImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Parse an existing ADP profile and print its classes",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _ := cmd.Flags().GetString("app")
		if app == "" {
			return fmt.Errorf("--app is required")
		}
		r, err := adp.Import(app, schema.BuiltinTypes())
		if err != nil {
			return fmt.Errorf("import profile: %w", err)
		}
		fmt.Printf("✓ Imported %s\n", adp.ProfilePath(app))
		for _, c := range r.Classes() {
			fmt.Printf("  class %-20s id=%d desig=%s\n", c.Name, c.Number, c.Designation)
			for _, m := range c.Members() {
				fmt.Printf("    member %-18s id=%-5d type=%-10s min=%d max=%d\n",
					m.Name, m.Number, m.Type.Name, m.MinPopulation, m.MaxPopulation)
			}
		}
		return nil
	},
}

func init() {
	adpExportCmd.Flags().String("app", "", "Application name")
	adpExportCmd.Flags().String("schema", "", "Path to the schema YAML file")
	adpImportCmd.Flags().String("app", "", "Application name")

	adpCmd.AddCommand(adpExportCmd)
	adpCmd.AddCommand(adpImportCmd)
}
