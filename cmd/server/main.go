// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/gapbox/internal/api/connect"
	"github.com/osa030/gapbox/internal/api/web"
	"github.com/osa030/gapbox/internal/app/filter"
	"github.com/osa030/gapbox/internal/app/session"
	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/config"
	"github.com/osa030/gapbox/internal/infra/logger"
	"github.com/osa030/gapbox/internal/infra/player"
	"github.com/osa030/gapbox/internal/infra/watcher"

	_ "github.com/osa030/gapbox/internal/infra/player/clock"
	_ "github.com/osa030/gapbox/internal/infra/player/speaker"
)

var (
	app        = kingpin.New("gapbox-server", "gapbox shuffle player with silence gaps")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	autoplay   = app.Flag("autoplay", "Start playback once the library is loaded").Bool()

	// list-players command
	listPlayersCmd = app.Command("list-players", "List available playback backends and exit")
	listFiltersCmd = app.Command("list-filters", "List available admission filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listPlayersCmd.FullCommand() {
		printPlayers()
		return
	}
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	p, err := player.New(cfg.Player)
	if err != nil {
		return errors.Wrap(err, "failed to create player")
	}

	sessionMgr, err := session.NewManager(cfg, p)
	if err != nil {
		_ = p.Close()
		return errors.Wrap(err, "failed to create session manager")
	}

	// Load the initial library
	if len(cfg.Library.Paths) > 0 {
		added, errs := sessionMgr.AddPaths(cfg.Library.Paths)
		zlog.Info().Msgf("Library loaded: tracks=%d errors=%d", len(added), len(errs))
	}

	// Watch the drop folder
	if cfg.Library.WatchDir != "" {
		w, err := watcher.New(cfg.Library.WatchDir, time.Duration(cfg.Library.DebounceMs)*time.Millisecond, func(files []track.RawFile) {
			added, errs := sessionMgr.Register(files)
			for _, err := range errs {
				zlog.Warn().Msgf("Drop folder: %v", err)
			}
			zlog.Info().Msgf("Drop folder: tracks added=%d", len(added))
		})
		if err != nil {
			return errors.Wrap(err, "failed to create drop folder watcher")
		}
		if err := w.Start(); err != nil {
			return errors.Wrap(err, "failed to watch drop folder")
		}
		defer w.Stop()
	}

	// Create RPC service
	var handlerOpts []connect.HandlerOption
	if cfg.AuthEnabled() {
		handlerOpts = append(handlerOpts, connect.WithInterceptors(apiconnect.NewTokenAuthInterceptor(cfg.Control.Token)))
	} else {
		zlog.Warn().Msg("Control token not set, the control API is open")
	}
	rpcPath, rpcHandler := apiconnect.NewControlServiceHandler(apiconnect.NewControlService(sessionMgr), handlerOpts...)

	router := web.NewServer(sessionMgr, cfg.Control.Token).Router(rpcPath, rpcHandler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(router, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	if *autoplay {
		if err := sessionMgr.Start(context.Background()); err != nil {
			zlog.Warn().Msgf("Autoplay did not start: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
		sessionMgr.Stop()
	case err := <-serverErrCh:
		sessionMgr.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to terminate active streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printPlayers prints available playback backends.
func printPlayers() {
	names := player.Registered()
	sort.Strings(names)
	fmt.Println("Available Players:")
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
}

func printFilters() {
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-24s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
