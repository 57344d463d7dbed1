package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Pairlink/internal/config"
	"github.com/BioHazard786/Pairlink/internal/coordinator"
	"github.com/BioHazard786/Pairlink/internal/ui"
)

var flagRoomsServer string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Show active rooms on a relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadParticipant(config.ParticipantOptions{ServerURL: flagRoomsServer})
		if err != nil {
			return err
		}
		statsURL, err := config.StatsURL(cfg.ServerURL)
		if err != nil {
			return err
		}

		stop := ui.RunConnectionSpinner("Fetching rooms...")
		stats, err := fetchStats(cmd.Context(), statsURL)
		stop()
		if err != nil {
			return err
		}

		ui.RenderRooms(stats)
		return nil
	},
}

func fetchStats(ctx context.Context, statsURL string) (coordinator.Stats, error) {
	var stats coordinator.Stats

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
	if err != nil {
		return stats, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("failed to fetch stats: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("invalid stats response: %w", err)
	}
	return stats, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVarP(&flagRoomsServer, "server", "S", "", "Signaling server URL (ws:// or wss://)")
}
