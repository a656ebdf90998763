package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/bfdd/internal/adminapi"
)

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Trigger a daemon configuration reload",
		Long:  "Asks the bfdd daemon to re-read its instance config file (equivalent to sending it SIGHUP).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			url := adminapi.ReloadURL(serverAddr)

			resp, err := httpClient.Post(url, "application/json", nil)
			if err != nil {
				return fmt.Errorf("POST %s: %w", url, err)
			}
			defer resp.Body.Close()

			var out adminapi.ReloadResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("decode reload response: %w", err)
			}

			if !out.OK {
				return fmt.Errorf("reload failed: %s", out.Error)
			}

			fmt.Println("Configuration reloaded.")

			return nil
		},
	}
}
