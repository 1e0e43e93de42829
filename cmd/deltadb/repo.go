package main

import (
	"fmt"
	"path/filepath"

	"github.com/hadronzoo/deltadb/pkg/adp"
	"github.com/hadronzoo/deltadb/pkg/blobstore"
	"github.com/hadronzoo/deltadb/pkg/container"
	"github.com/hadronzoo/deltadb/pkg/repository"
	"github.com/hadronzoo/deltadb/pkg/schema"
	"github.com/hadronzoo/deltadb/pkg/strtable"
	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Work with an object repository (RAM or disk)",
}

// engineRepo is the subset of RAM's and Disk's exported methods the CLI
// needs; both satisfy it without either package exposing a shared
// interface type, since application code binds to the concrete type it
// chose up front.
type engineRepo interface {
	Insert(c *container.Container) (uint32, error)
	Fetch(objID uint32) (*container.Container, error)
	Population() uint32
}

func classForApp(app, className string) (*schema.Class, error) {
	r, err := adp.Import(app, schema.BuiltinTypes())
	if err != nil {
		return nil, fmt.Errorf("import ADP profile for %q: %w", app, err)
	}
	c, ok := r.ClassByName(className)
	if !ok {
		return nil, fmt.Errorf("class %q not found in %s", className, adp.ProfilePath(app))
	}
	return c, nil
}

func openRepo(cmd *cobra.Command, kind, app, className string) (engineRepo, error) {
	dir := dataDir(cmd)
	class, err := classForApp(app, className)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "ram":
		strs, err := strtable.Open(filepath.Join(dir, "strtable.bolt"))
		if err != nil {
			return nil, fmt.Errorf("open string table: %w", err)
		}
		r := repository.NewRAM(dir, className, strs)
		if err := r.InitStart(class); err != nil {
			return nil, fmt.Errorf("init repository: %w", err)
		}
		if err := r.InitDone(); err != nil {
			return nil, fmt.Errorf("open repository: %w", err)
		}
		return r, nil
	case "disk":
		records, err := blobstore.Open(
			filepath.Join(dir, className+".dat"),
			filepath.Join(dir, className+".idx"),
		)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		d := repository.NewDisk(dir, className, nil)
		if err := d.InitStart(class); err != nil {
			return nil, fmt.Errorf("init repository: %w", err)
		}
		if err := d.InitDone(records); err != nil {
			return nil, fmt.Errorf("open repository: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("--kind must be \"ram\" or \"disk\", got %q", kind)
	}
}

var repoCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create (or open) a repository's on-disk files",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _ := cmd.Flags().GetString("app")
		class, _ := cmd.Flags().GetString("class")
		kind, _ := cmd.Flags().GetString("kind")
		repo, err := openRepo(cmd, kind, app, class)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Repository %q (%s) ready, population=%d\n", class, kind, repo.Population())
		return nil
	},
}

var repoInsertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert one record from a JSON object",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _ := cmd.Flags().GetString("app")
		className, _ := cmd.Flags().GetString("class")
		kind, _ := cmd.Flags().GetString("kind")
		jsonText, _ := cmd.Flags().GetString("json")

		repo, err := openRepo(cmd, kind, app, className)
		if err != nil {
			return err
		}
		class, err := classForApp(app, className)
		if err != nil {
			return err
		}
		c, err := container.Init("", class)
		if err != nil {
			return fmt.Errorf("init container: %w", err)
		}
		if errs := c.ImportJSON([]byte(jsonText)); len(errs) > 0 {
			for _, e := range errs {
				fmt.Printf("  warning: %s\n", e.Error())
			}
		}
		id, err := repo.Insert(c)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		fmt.Printf("✓ Inserted object %d\n", id)
		return nil
	},
}

var repoFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one record by object ID and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _ := cmd.Flags().GetString("app")
		class, _ := cmd.Flags().GetString("class")
		kind, _ := cmd.Flags().GetString("kind")
		id, _ := cmd.Flags().GetUint32("id")

		repo, err := openRepo(cmd, kind, app, class)
		if err != nil {
			return err
		}
		c, err := repo.Fetch(id)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		out, err := c.ExportJSON()
		if err != nil {
			return fmt.Errorf("export json: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

var repoScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch every live record, object ID 1..population",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _ := cmd.Flags().GetString("app")
		class, _ := cmd.Flags().GetString("class")
		kind, _ := cmd.Flags().GetString("kind")

		repo, err := openRepo(cmd, kind, app, class)
		if err != nil {
			return err
		}
		pop := repo.Population()
		fmt.Printf("population=%d\n", pop)
		for id := uint32(1); id <= pop; id++ {
			c, err := repo.Fetch(id)
			if err != nil {
				continue // tombstoned or never-inserted object ID
			}
			out, err := c.ExportJSON()
			if err != nil {
				return fmt.Errorf("export json (object %d): %w", id, err)
			}
			fmt.Printf("%d: %s\n", id, out)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{repoCreateCmd, repoInsertCmd, repoFetchCmd, repoScanCmd} {
		c.Flags().String("app", "", "Application name")
		c.Flags().String("class", "", "Class name")
		c.Flags().String("kind", "ram", "Repository kind: ram or disk")
	}
	repoInsertCmd.Flags().String("json", "{}", "JSON object to insert")
	repoFetchCmd.Flags().Uint32("id", 0, "Object ID to fetch")

	repoCmd.AddCommand(repoCreateCmd)
	repoCmd.AddCommand(repoInsertCmd)
	repoCmd.AddCommand(repoFetchCmd)
	repoCmd.AddCommand(repoScanCmd)
}
