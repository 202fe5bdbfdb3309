package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/sysbind/internal/api"
	"github.com/kalambet/sysbind/internal/binding"
	"github.com/kalambet/sysbind/internal/bootup"
	"github.com/kalambet/sysbind/internal/config"
	"github.com/kalambet/sysbind/internal/manifest"
	"github.com/kalambet/sysbind/internal/storage"
	"github.com/kalambet/sysbind/internal/sysfs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sysbind server (foreground)",
	Long: `Start the sysbind server (foreground).

With --mcp the bindings are also exposed as MCP tools over stdin/stdout,
for agents that launch sysbind as a subprocess.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sysbind server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sysbind status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sysbind.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// parseLogLevel maps a config level name to a slog level, defaulting to info.
func parseLogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))
}

// openControlFiles picks how control files are accessed: through a command
// prefix such as "sudo -n" when writer.command is set, otherwise directly
// below sysfs.root.
func openControlFiles(cfg config.Config) sysfs.ReadWriter {
	if cfg.Sysfs.WriterCommand != "" {
		if cfg.Sysfs.Root != "/" {
			slog.Warn("sysfs.root is ignored when writer.command is set", "root", cfg.Sysfs.Root, "command", cfg.Sysfs.WriterCommand)
		}
		return sysfs.NewShellWriter(cfg.Sysfs.WriterCommand)
	}
	return sysfs.NewOS(cfg.Sysfs.Root)
}

// restoreLocal replays bootup entries without a running server.
func restoreLocal(ctx context.Context, category string) (bootup.RestoreReport, error) {
	cfg, err := config.Load()
	if err != nil {
		return bootup.RestoreReport{}, err
	}
	setupLogging(cfg)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return bootup.RestoreReport{}, fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	restorer := bootup.NewRestorer(bootup.NewRegistry(store), openControlFiles(cfg))
	return restorer.Run(ctx, category)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "sysbind version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	apiToken, err := cfg.APIToken()
	if err != nil {
		return err
	}

	reinitDelay, err := cfg.ReinitDelay()
	if err != nil {
		slog.Warn("invalid reinit delay, using default", "value", cfg.Bindings.ReinitDelay, "default", reinitDelay)
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sysbind is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sysbind is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	mf, err := manifest.Load(cfg.Bindings.File)
	if err != nil {
		return err
	}

	controlFiles := openControlFiles(cfg)
	registry := bootup.NewRegistry(store)
	screen, err := mf.Build(binding.Deps{
		IO:       controlFiles,
		Registry: registry,
		Logger:   slog.Default(),
	}, manifest.Defaults{
		ReinitDelay:    reinitDelay,
		ParallelFanOut: cfg.Bindings.ParallelFanOut,
	})
	if err != nil {
		return fmt.Errorf("building bindings: %w", err)
	}
	defer screen.Close()

	screen.InitAll(ctx)
	supported := 0
	for _, b := range screen.Bindings() {
		if b.IsSupported() {
			supported++
		}
	}
	slog.Info("bindings loaded", "file", cfg.Bindings.File, "total", len(screen.Bindings()), "supported", supported)

	appDeps := api.AppDeps{
		Screen:   screen,
		Registry: registry,
		Restorer: bootup.NewRestorer(registry, controlFiles),
		Token:    apiToken,
	}
	handler := api.NewAppHandler(appDeps)

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(appDeps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "sysbind listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("sysbind is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sysbind (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sysbind (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := httpClient.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Bindings file", "%s", cfg.Bindings.File)
	if cfg.Sysfs.WriterCommand != "" {
		printStatus("Writer", "%s", cfg.Sysfs.WriterCommand)
	} else {
		printStatus("Sysfs root", "%s", cfg.Sysfs.Root)
	}

	if token, tokenErr := cfg.APIToken(); running && tokenErr == nil {
		client := &apiClient{baseURL: serverURL, token: token, httpClient: httpClient}
		if infos, err := client.listBindings(ctx); err == nil {
			supported := 0
			for _, info := range infos {
				if info.Supported {
					supported++
				}
			}
			printStatus("Bindings", "%d (%d supported)", len(infos), supported)
		}
		if entries, err := client.listBootup(ctx, ""); err == nil {
			printStatus("Bootup entries", "%d", len(entries))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
