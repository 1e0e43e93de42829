package main

import (
	"fmt"
	"path/filepath"

	"github.com/hadronzoo/deltadb/pkg/isam"
	"github.com/spf13/cobra"
)

var isamCmd = &cobra.Command{
	Use:   "isam",
	Short: "Work with an ISAM key/value file directly",
}

func openISAM(cmd *cobra.Command, name string) (*isam.File, error) {
	dir := dataDir(cmd)
	return isam.Open(filepath.Join(dir, name+".dat"), filepath.Join(dir, name+".idx"))
}

var isamPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Insert or overwrite a key",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		key, _ := cmd.Flags().GetString("key")
		value, _ := cmd.Flags().GetString("value")

		f, err := openISAM(cmd, name)
		if err != nil {
			return fmt.Errorf("open ISAM file: %w", err)
		}
		defer f.Close()

		if err := f.Insert([]byte(key), []byte(value)); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		fmt.Printf("✓ Put %q\n", key)
		return nil
	},
}

var isamGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a key",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		key, _ := cmd.Flags().GetString("key")

		f, err := openISAM(cmd, name)
		if err != nil {
			return fmt.Errorf("open ISAM file: %w", err)
		}
		defer f.Close()

		results, err := f.Fetch([]byte(key), []byte(key))
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		val, ok := results[key]
		if !ok {
			return fmt.Errorf("key %q not found", key)
		}
		fmt.Println(string(val))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{isamPutCmd, isamGetCmd} {
		c.Flags().String("name", "", "ISAM file name")
		c.Flags().String("key", "", "Key")
	}
	isamPutCmd.Flags().String("value", "", "Value")

	isamCmd.AddCommand(isamPutCmd)
	isamCmd.AddCommand(isamGetCmd)
}
