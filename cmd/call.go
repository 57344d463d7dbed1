package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Pairlink/internal/config"
	"github.com/BioHazard786/Pairlink/internal/engine"
	"github.com/BioHazard786/Pairlink/internal/negotiation"
	"github.com/BioHazard786/Pairlink/internal/roomname"
	"github.com/BioHazard786/Pairlink/internal/signaling"
	"github.com/BioHazard786/Pairlink/internal/ui"
	"github.com/BioHazard786/Pairlink/internal/version"
)

var (
	flagServer   string
	flagName     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagStay     bool
	flagAudio    bool
	flagPlain    bool
	flagNew      bool
)

var callCmd = &cobra.Command{
	Use:     "call [room]",
	Aliases: []string{"c"},
	Short:   "Join a room and connect to whoever else is in it",
	Long: `Join a room on the signaling relay and negotiate a WebRTC session with the
other participant. The second participant to arrive makes the offer.

Examples:
  pairlink call
  pairlink call standup --name alice
  pairlink call standup --server wss://relay.example.com/ws --relay --turn turn.example.com
  pairlink call standup --stay --audio
  pairlink call --new`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var room string
		if len(args) > 0 {
			room = args[0]
		}
		if flagNew {
			if room != "" {
				return fmt.Errorf("--new cannot be combined with a room name")
			}
			name, err := newRoomName(cmd.Context(), flagServer)
			if err != nil {
				return err
			}
			room = name
		}
		return call(cmd.Context(), room)
	},
}

// statusTracker remembers what the summary needs.
type statusTracker struct {
	mu          sync.Mutex
	last        negotiation.Status
	connectedAt time.Time
}

func (t *statusTracker) observe(st negotiation.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = st
	if st.State == negotiation.StateConnected && t.connectedAt.IsZero() {
		t.connectedAt = time.Now()
	}
}

func (t *statusTracker) summary(room, result string) ui.SessionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var d time.Duration
	if !t.connectedAt.IsZero() {
		d = time.Since(t.connectedAt)
	}
	return ui.SessionSummary{
		Room:     room,
		Peer:     t.last.Peer,
		Duration: d,
		RTT:      t.last.RTT,
		Result:   result,
	}
}

func call(ctx context.Context, room string) error {
	cfg, err := config.LoadParticipant(config.ParticipantOptions{
		ServerURL:  flagServer,
		Room:       room,
		Name:       flagName,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return err
	}

	ui.RenderSessionInfo(ui.SessionInfo{
		Room:      cfg.Room,
		Name:      cfg.Name,
		Server:    cfg.ServerURL,
		RelayOnly: cfg.RelayOnly,
		AutoRelay: cfg.AutoRelay,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := slog.Default()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	client := signaling.NewClient(cfg.ServerURL, signaling.ClientOptions{Logger: logger})
	err = client.Connect(ctx)
	stopSpinner()
	if err != nil {
		return negotiation.WrapError("connect", cfg.Room, negotiation.ErrChannelLost, err)
	}
	defer client.Close()

	openMedia, err := localMedia(ctx, flagAudio)
	if err != nil {
		return negotiation.WrapError("open local media", cfg.Room, negotiation.ErrTransport, err)
	}

	tracker := &statusTracker{}
	var view *ui.CallUI
	onStatus := printStatus
	onEnded := ui.PrintWarning
	if !flagPlain {
		view = ui.NewCallUI(cfg.Room)
		onStatus = view.Push
		onEnded = view.End
	}

	n := negotiation.New(client, negotiation.Options{
		NewEngine: engine.NewFactory(engine.Options{Name: cfg.Name, Version: version.Version, Logger: logger}),
		Policy:    cfg.Policy(),
		OpenMedia: openMedia,
		Rejoin:    flagStay,
		OnStatus: func(st negotiation.Status) {
			tracker.observe(st)
			onStatus(st)
			if prompt, ok := sessionOver(st, flagStay); ok {
				onEnded(prompt)
			}
		},
		Logger: logger,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- n.Run(ctx) }()

	if err := n.Join(cfg.Room); err != nil {
		cancel()
		<-runErr
		return err
	}

	var quit <-chan struct{}
	if view != nil {
		view.Start()
		quit = view.Quit()
	}

	result := "hung up"
	var sessionErr error
	select {
	case <-quit:
	case <-ctx.Done():
	case sessionErr = <-runErr:
		result = "signaling connection lost"
	}

	// Cancelling makes Run leave the room before it returns.
	cancel()
	if sessionErr == nil {
		sessionErr = <-runErr
	}
	if view != nil {
		view.Stop()
	}

	if errors.Is(sessionErr, negotiation.ErrChannelLost) {
		result = "signaling connection lost"
	}
	ui.RenderSessionSummary(tracker.summary(cfg.Room, result))
	return sessionErr
}

// sessionOver reports whether st leaves this call with nothing more to do,
// and what the user should do next.
func sessionOver(st negotiation.Status, stay bool) (string, bool) {
	switch {
	case errors.Is(st.Err, negotiation.ErrRoomFull):
		return fmt.Sprintf("Room %s is full. Run pairlink call with another room to try again.", st.Room), true
	case errors.Is(st.Err, negotiation.ErrPeerLeft) && !stay:
		return "The call has ended. Run pairlink call again to reconnect, or pass --stay to wait for the next peer.", true
	}
	return "", false
}

// newRoomName picks a memorable room name that the relay does not report
// as occupied. The occupancy check is best effort.
func newRoomName(ctx context.Context, server string) (string, error) {
	occupied := map[string]bool{}
	cfg, err := config.LoadParticipant(config.ParticipantOptions{ServerURL: server})
	if err != nil {
		return "", err
	}
	if statsURL, err := config.StatsURL(cfg.ServerURL); err == nil {
		if stats, err := fetchStats(ctx, statsURL); err == nil {
			for _, o := range stats.Occupancy {
				occupied[o.Room] = true
			}
		} else {
			slog.Debug("could not check room occupancy", "error", err)
		}
	}
	return roomname.Generate(func(name string) bool { return occupied[name] })
}

// localMedia returns the media source for every join. With audio enabled a
// single silent Opus track is shared by all sessions of this call.
func localMedia(ctx context.Context, audio bool) (func() ([]negotiation.Track, error), error) {
	if !audio {
		return nil, nil
	}

	mic, err := engine.NewAudioTrack("audio")
	if err != nil {
		return nil, err
	}
	go func() {
		if err := engine.StreamSilence(ctx, mic); err != nil {
			slog.Debug("audio source stopped", "error", err)
		}
	}()

	return func() ([]negotiation.Track, error) {
		return []negotiation.Track{mic}, nil
	}, nil
}

func printStatus(st negotiation.Status) {
	if st.Err != nil {
		ui.PrintWarningf("%s: %v", st.Text, st.Err)
		return
	}
	ui.PrintInfof("[%s] %s", st.State, st.Text)
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVarP(&flagServer, "server", "S", "", "Signaling server URL (ws:// or wss://)")
	callCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name sent to the peer")
	callCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	callCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	callCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	callCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	callCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	callCmd.Flags().BoolVar(&flagStay, "stay", false, "Stay in the room and wait for a new peer after one leaves")
	callCmd.Flags().BoolVar(&flagAudio, "audio", false, "Send a silent audio track")
	callCmd.Flags().BoolVar(&flagPlain, "plain", false, "Print status lines instead of the live view")
	callCmd.Flags().BoolVar(&flagNew, "new", false, "Create a room with a generated name")
}
