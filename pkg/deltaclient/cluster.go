package deltaclient

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/hadronzoo/deltadb/pkg/dberr"
)

// ClusterConfigPath is where the mirror daemon's address is read from on
// first use (spec §6 "Process-wide configuration: the mirror daemon's
// address and port pair is read from /etc/hzDelta.d/cluster.xml").
const ClusterConfigPath = "/etc/hzDelta.d/cluster.xml"

type clusterXML struct {
	XMLName xml.Name `xml:"cluster"`
	Mirror  struct {
		Host string `xml:"host,attr"`
		Port int    `xml:"port,attr"`
	} `xml:"mirror"`
}

// ReadClusterAddr parses path (normally ClusterConfigPath) and returns
// "host:port" for the local mirroring daemon.
func ReadClusterAddr(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", dberr.Wrap(dberr.KindIO, "deltaclient.ReadClusterAddr", "read cluster config", err)
	}
	var cfg clusterXML
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return "", dberr.Wrap(dberr.KindFormat, "deltaclient.ReadClusterAddr", "parse cluster config", err)
	}
	if cfg.Mirror.Host == "" || cfg.Mirror.Port == 0 {
		return "", dberr.New(dberr.KindFormat, "deltaclient.ReadClusterAddr", "cluster config missing mirror host/port")
	}
	return fmt.Sprintf("%s:%d", cfg.Mirror.Host, cfg.Mirror.Port), nil
}
