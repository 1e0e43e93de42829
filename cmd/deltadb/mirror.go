package main

import (
	"fmt"
	"net"
	"time"

	"github.com/hadronzoo/deltadb/pkg/deltaclient"
	"github.com/spf13/cobra"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Inspect the local delta mirroring daemon",
}

var mirrorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the mirroring daemon named in cluster.xml is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("cluster-config")
		if path == "" {
			path = deltaclient.ClusterConfigPath
		}
		addr, err := deltaclient.ReadClusterAddr(path)
		if err != nil {
			return fmt.Errorf("read cluster config: %w", err)
		}
		fmt.Printf("mirror daemon: %s\n", addr)

		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			fmt.Printf("✗ unreachable: %v\n", err)
			return nil
		}
		conn.Close()
		fmt.Println("✓ reachable")
		return nil
	},
}

func init() {
	mirrorStatusCmd.Flags().String("cluster-config", "", "Path to cluster.xml (defaults to /etc/hzDelta.d/cluster.xml)")
	mirrorCmd.AddCommand(mirrorStatusCmd)
}
