// Package main provides the control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/gapbox/internal/api/connect"
	"github.com/osa030/gapbox/internal/app/notification"
)

var (
	app    = kingpin.New("gapbox-ctl", "gapbox control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("GAPBOX_SERVER").String()
	token  = app.Flag("token", "Control token (or set GAPBOX_CONTROL_TOKEN env)").Envar("GAPBOX_CONTROL_TOKEN").String()

	// add command
	addCmd   = app.Command("add", "Add files or directories (paths on the server host)")
	addPaths = addCmd.Arg("paths", "Files or directories").Required().Strings()

	// clear command
	clearCmd = app.Command("clear", "Stop playback and empty the pool")

	// remove command
	removeCmd  = app.Command("remove", "Remove a track by name").Alias("rm")
	removeName = removeCmd.Arg("name", "Track name").Required().String()

	// list command
	listCmd = app.Command("list", "List the pool").Alias("ls")

	// playback commands
	startCmd = app.Command("start", "Start shuffle playback")
	stopCmd  = app.Command("stop", "Stop playback")
	skipCmd  = app.Command("skip", "Skip the current track or gap")

	// gap command
	gapCmd = app.Command("gap", "Set the gap bounds in seconds")
	gapMin = gapCmd.Arg("min", "Minimum gap in seconds").Required().Float64()
	gapMax = gapCmd.Arg("max", "Maximum gap in seconds").Required().Float64()

	// status command
	statusCmd = app.Command("status", "Show playback status")

	// key command
	keyCmd    = app.Command("key", "Send a media key")
	keyAction = keyCmd.Arg("action", "Media action").Required().Enum("play", "pause", "nexttrack", "previoustrack")

	// watch command
	watchCmd = app.Command("watch", "Stream notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx := context.Background()

	switch command {
	case addCmd.FullCommand():
		add(ctx, client, *addPaths)
	case clearCmd.FullCommand():
		n, err := client.ClearPool(ctx)
		exitOnError(err)
		fmt.Printf("Pool cleared (%d tracks removed)\n", n)
	case removeCmd.FullCommand():
		exitOnError(client.RemoveTrack(ctx, *removeName))
		fmt.Printf("Removed %s\n", *removeName)
	case listCmd.FullCommand():
		list(ctx, client)
	case startCmd.FullCommand():
		st, err := client.Start(ctx)
		exitOnError(err)
		printStatus(st)
	case stopCmd.FullCommand():
		st, err := client.Stop(ctx)
		exitOnError(err)
		printStatus(st)
	case skipCmd.FullCommand():
		st, err := client.Skip(ctx)
		exitOnError(err)
		printStatus(st)
	case gapCmd.FullCommand():
		st, err := client.SetGap(ctx, *gapMin, *gapMax)
		exitOnError(err)
		fmt.Printf("Gap set to %.1fs - %.1fs\n", st.GapMinSeconds, st.GapMaxSeconds)
	case statusCmd.FullCommand():
		st, err := client.GetStatus(ctx)
		exitOnError(err)
		printStatus(st)
	case keyCmd.FullCommand():
		st, err := client.MediaAction(ctx, *keyAction)
		exitOnError(err)
		printStatus(st)
	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func add(ctx context.Context, client *apiconnect.Client, paths []string) {
	abs := make([]string, len(paths))
	for i, p := range paths {
		if a, err := filepath.Abs(p); err == nil {
			abs[i] = a
		} else {
			abs[i] = p
		}
	}

	resp, err := client.AddFiles(ctx, abs)
	exitOnError(err)

	for _, t := range resp.Added {
		fmt.Printf("  + %s (%.1fs)\n", t.Name, t.DurationSeconds)
	}
	for _, e := range resp.Errors {
		fmt.Printf("  ! %s\n", e)
	}
	fmt.Printf("Added %d track(s), pool size %d\n", len(resp.Added), resp.PoolSize)
}

func list(ctx context.Context, client *apiconnect.Client) {
	resp, err := client.ListTracks(ctx)
	exitOnError(err)

	fmt.Printf("Tracks (%d, %.0fs total):\n", len(resp.Tracks), resp.TotalDurationSeconds)
	for i, t := range resp.Tracks {
		fmt.Printf("  %3d. %s", i+1, t.Label)
		if t.Label != t.Name {
			fmt.Printf(" [%s]", t.Name)
		}
		if t.DurationSeconds > 0 {
			fmt.Printf(" (%.1fs)", t.DurationSeconds)
		}
		fmt.Println()
	}
}

func watch(ctx context.Context, client *apiconnect.Client) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	err := client.Subscribe(ctx, func(n *notification.Notification) bool {
		printNotification(n)
		return true
	})
	if err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}

func printStatus(s *apiconnect.Status) {
	fmt.Println("\n=== PLAYBACK STATUS ===")
	fmt.Printf("Phase: %s\n", formatPhase(s.Phase))
	fmt.Printf("Pool: %d track(s), %.0fs\n", s.PoolSize, s.PoolDurationSeconds)
	fmt.Printf("Gap: %.1fs - %.1fs\n", s.GapMinSeconds, s.GapMaxSeconds)

	switch {
	case s.Track != nil:
		fmt.Printf("\nNow Playing:\n")
		fmt.Printf("  %s\n", s.Track.Label)
		if s.Track.Album != "" {
			fmt.Printf("  Album: %s\n", s.Track.Album)
		}
		if s.PlannedSeconds > 0 {
			fmt.Printf("  Remaining: %.0f / %.0f seconds\n", s.RemainingSeconds, s.PlannedSeconds)
		}
	case s.Phase == "playing_gap":
		fmt.Printf("\nSilence: %.1f of %.1f seconds left\n", s.RemainingSeconds, s.PlannedSeconds)
	default:
		fmt.Println("\nNothing playing")
	}
	fmt.Println()
}

func printNotification(n *notification.Notification) {
	fmt.Printf("[Sequence: %d] ", n.SequenceNo)

	switch n.Type {
	case notification.TypeInitialState:
		fmt.Printf("=== INITIAL STATE === %s, pool %d\n", formatPhase(n.Phase), n.PoolSize)
	case notification.TypeTrackStarted:
		fmt.Printf("=== TRACK === %s\n", n.Track.Label)
	case notification.TypeGapStarted:
		fmt.Printf("=== GAP === %.1fs of silence\n", n.GapSeconds)
	case notification.TypeGapProgress:
		fmt.Printf("gap: %.1fs left\n", n.RemainingSeconds)
	case notification.TypeSkipped:
		fmt.Printf("=== SKIPPED === %s -> %s\n", formatPhase(n.SkippedPhase), formatPhase(n.Phase))
	case notification.TypeStopped:
		fmt.Println("=== STOPPED ===")
	case notification.TypePlaybackRejected:
		fmt.Printf("=== REJECTED === %s\n", n.Error)
	case notification.TypePoolChanged:
		fmt.Printf("pool: %d track(s)\n", n.PoolSize)
	case notification.TypeGapChanged:
		fmt.Printf("gap bounds: %.1fs - %.1fs\n", n.GapMinSeconds, n.GapMaxSeconds)
	default:
		fmt.Printf("=== UNKNOWN EVENT (%s) ===\n", n.Type)
	}
}

func formatPhase(phase string) string {
	switch phase {
	case "idle":
		return "⏹  Idle"
	case "playing_track":
		return "▶️  Playing track"
	case "playing_gap":
		return "⏸  Playing gap"
	default:
		return "❓ Unknown"
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
