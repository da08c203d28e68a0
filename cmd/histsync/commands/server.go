package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/histsync/am"
	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/server"
)

// ServerCmd runs the reference sync server
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the reference sync server",
	Long: `Serve the histsync record API from a server-side database
(server.database_path). Clients authenticate with one of server.tokens;
with no tokens configured the server is open.

Examples:
  histsync server                        # Listen on server.address
  histsync server --address :8888        # Override the listen address`,
	RunE: runServer,
}

var (
	serverAddress string
	serverDBPath  string
)

func init() {
	ServerCmd.Flags().StringVar(&serverAddress, "address", "", "Listen address (default: server.address)")
	ServerCmd.Flags().StringVar(&serverDBPath, "db", "", "Database path (default: server.database_path)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	addr := cfg.Server.Address
	if serverAddress != "" {
		addr = serverAddress
	}
	dbPath := cfg.Server.DatabasePath
	if serverDBPath != "" {
		dbPath = serverDBPath
	}

	st, database, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	log := logger.ComponentLogger("server")
	if len(cfg.Server.Tokens) == 0 {
		log.Warnw("No server.tokens configured; accepting unauthenticated requests")
	}

	srv := server.New(st,
		server.WithTokens(cfg.Server.Tokens),
		server.WithRateLimit(cfg.Server.RequestsPerSecond, cfg.Server.Burst),
		server.WithLogger(log),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, addr)
}
