package commands

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/config"
	"github.com/leapstack-labs/leaplineage/internal/metrics"
	"github.com/leapstack-labs/leaplineage/internal/ui"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port      int
	NoBrowser bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lineage editor server",
		Long: `Start a local web server exposing the lineage API.

The server provides:
- Stateless projection, layout and classification endpoints
- Per-browser explorer sessions with expansion and editing
- Live view updates over server-sent events
- Prometheus metrics at /metrics`,
		Example: `  # Start on the default port
  leaplineage serve

  # Start on a custom port without opening a browser
  leaplineage serve --port 3000 --no-browser`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "Don't auto-open browser")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	e := envOf(cmd)
	ctx := cmd.Context()

	// CLI flags override config file
	port := e.cfg.Server.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	autoOpen := e.cfg.Server.AutoOpen && !opts.NoBrowser

	client, closeCache, err := newCatalog(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeCache() }()

	server := ui.NewServer(ui.Config{
		Fetcher:         client,
		Persister:       client,
		Layout:          e.cfg.Layout,
		UpstreamDepth:   e.cfg.Catalog.UpstreamDepth,
		DownstreamDepth: e.cfg.Catalog.DownstreamDepth,
		Port:            port,
		SessionSecret:   sessionSecret(e.cfg),
		SessionIdle:     e.cfg.Server.SessionIdle,
		Logger:          e.logger,
		Metrics:         metrics.NewRegistry(),
	})

	if autoOpen {
		go openBrowser(fmt.Sprintf("http://localhost:%d", port))
	}

	e.out.Printf("Starting lineage server on http://localhost:%d\n", port)
	e.out.Println("Press Ctrl+C to stop")

	return server.Serve(ctx)
}

// sessionSecret returns the configured cookie secret. Without one a random
// secret is used, so sessions do not survive a restart.
func sessionSecret(cfg *config.Config) string {
	if cfg.Server.SessionSecret != "" {
		return cfg.Server.SessionSecret
	}
	if secret := os.Getenv(config.EnvPrefix + "SESSION_SECRET"); secret != "" {
		return secret
	}
	return uuid.NewString()
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
