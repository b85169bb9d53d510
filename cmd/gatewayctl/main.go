// Command gatewayctl is an offline admin tool for the gateway's durable
// cache snapshot: it opens the same JSON file the running gatewayd
// process reads and writes, so it must not be run concurrently with a
// live gatewayd pointed at the same file.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alarmbridge/isecnet-gateway/internal/cache"
)

var cacheFile string

func main() {
	root := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Admin CLI for the isecnet-gateway cache snapshot",
	}
	root.PersistentFlags().StringVar(&cacheFile, "file", "./data/gateway-cache.json", "path to the cache snapshot file")

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or edit the durable cache snapshot",
	}
	cacheCmd.AddCommand(statsCmd())
	cacheCmd.AddCommand(showZoneNamesCmd())
	cacheCmd.AddCommand(clearConnectionInfoCmd())
	root.AddCommand(cacheCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openCache() (*cache.Cache, error) {
	return cache.New(cacheFile, 5*time.Minute)
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			s := c.Stats()
			fmt.Printf("tokens:              %d\n", s.Tokens)
			fmt.Printf("device_passwords:     %d\n", s.DevicePasswords)
			fmt.Printf("connection_info:      %d (in-memory only, always 0 here)\n", s.ConnectionInfo)
			fmt.Printf("partitions_enabled:   %d (in-memory only, always 0 here)\n", s.PartitionsEnabled)
			fmt.Printf("zone_friendly_names:  %d\n", s.ZoneFriendlyNames)
			fmt.Printf("last_known_status:    %d\n", s.LastKnownStatus)
			return nil
		},
	}
}

func showZoneNamesCmd() *cobra.Command {
	var panelID string
	cmd := &cobra.Command{
		Use:   "show-zone-names",
		Short: "Print the friendly zone names saved for a panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if panelID == "" {
				return fmt.Errorf("--panel is required")
			}
			c, err := openCache()
			if err != nil {
				return err
			}
			names := c.GetAllZoneFriendlyNames(panelID)
			if len(names) == 0 {
				fmt.Println("no zone names saved for this panel")
				return nil
			}
			for idx, name := range names {
				fmt.Printf("%d: %s\n", idx, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&panelID, "panel", "", "panel id")
	return cmd
}

func clearConnectionInfoCmd() *cobra.Command {
	var panelID string
	cmd := &cobra.Command{
		Use:   "clear-connection-info",
		Short: "Force the next request for a panel to re-resolve connection info from the vendor cloud",
		RunE: func(cmd *cobra.Command, args []string) error {
			if panelID == "" {
				return fmt.Errorf("--panel is required")
			}
			c, err := openCache()
			if err != nil {
				return err
			}
			c.InvalidateConnectionInfo(panelID)
			fmt.Printf("cleared connection info for %s (no-op if the process wasn't holding it in memory)\n", panelID)
			return nil
		},
	}
	cmd.Flags().StringVar(&panelID, "panel", "", "panel id")
	return cmd
}
