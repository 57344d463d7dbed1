package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Pairlink/internal/config"
	"github.com/BioHazard786/Pairlink/internal/coordinator"
	"github.com/BioHazard786/Pairlink/internal/logging"
)

var (
	flagAddr    string
	flagOrigins string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the room coordinator. Participants connect to /ws, join a room by
name, and the coordinator relays offers, answers and candidates between the
two members of each room.

Examples:
  pairlink serve
  pairlink serve --addr :9000
  pairlink serve --origins https://app.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.InitWithDefault(slog.LevelInfo)

		cfg, err := config.LoadServer(config.ServerOptions{
			Addr:    flagAddr,
			Origins: flagOrigins,
		})
		if err != nil {
			return err
		}

		logger := slog.Default()
		hub := coordinator.NewHub(logger)
		srv := coordinator.NewServer(hub, cfg.CoordinatorOptions(), logger)
		return srv.ListenAndServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default :8080)")
	serveCmd.Flags().StringVarP(&flagOrigins, "origins", "o", "", "Comma-separated allowed browser origins")
}
