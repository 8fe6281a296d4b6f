// ABOUTME: Entry point for the loomd agent orchestration daemon
// ABOUTME: Wires the classifier, planner, bus, store and scheduler together

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/loomworks/loom/internal/backroom"
	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/dedupe"
	"github.com/loomworks/loom/internal/intent"
	"github.com/loomworks/loom/internal/orchestrator"
	"github.com/loomworks/loom/internal/scheduler"
	"github.com/loomworks/loom/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _
| | ___   ___  _ __ ___
| |/ _ \ / _ \| '_ ' _ \
| | (_) | (_) | | | | | |
|_|\___/ \___/|_| |_| |_|
`

// getConfigPath returns the path to the loomd config file.
// Priority: LOOM_CONFIG env var > XDG_CONFIG_HOME/loom/loomd.yaml > ~/.config/loom/loomd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("LOOM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "loomd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "loom", "loomd.yaml")
}

// getDataPath returns the path to the loom data directory.
// Priority: XDG_DATA_HOME/loom > ~/.local/share/loom
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "loom")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: loomd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve              Start the orchestration daemon")
		fmt.Println("  init               Create a new config file interactively")
		fmt.Println("  task \"<request>\"   Run a one-off natural language task")
		fmt.Println("  chain \"<goal>\"     Run a predefined multi-agent chain")
		fmt.Println("  agents             List known agents and their status")
		fmt.Println("  health             Check daemon health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "task":
		err = runTask(ctx)
	case "chain":
		err = runChain(ctx)
	case "agents":
		err = runAgents()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when none exists.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

// runtime bundles the wired collaborators shared by serve and the CLI commands.
type runtime struct {
	store *store.SQLiteStore
	bus   *backroom.Bus
	orch  *orchestrator.Orchestrator
}

func buildRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	bus := backroom.NewBus(logger)
	pool := orchestrator.NewStubAgentPool(st, bus, logger)
	orch := orchestrator.New(intent.NewKeywordClassifier(), pool.Handle, logger)

	return &runtime{store: st, bus: bus, orch: orch}, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	fmt.Println()

	logger.Info("starting loomd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Path,
	)

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched := scheduler.NewScheduler(rt.store, rt.store, rt.orch, nil, logger)
	defer sched.Close()

	if cfg.Scheduler.Enabled {
		if err := recoverJobs(ctx, rt.store, sched, logger); err != nil {
			return fmt.Errorf("recovering jobs: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})
	webhookBase := cfg.Server.WebhookBase
	if webhookBase == "" {
		webhookBase = "/hooks"
	}
	deliveries := dedupe.New(5*time.Minute, 4096)
	defer deliveries.Close()

	mux.HandleFunc(webhookBase+"/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if id := r.Header.Get("X-Delivery-ID"); id != "" && deliveries.Seen(id) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"triggered": 0, "duplicate": true})
			return
		}
		fired := sched.TriggerWebhook(r.Context(), r.URL.Path)
		if fired == 0 {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"triggered": fired})
	})

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// recoverJobs re-registers scheduler jobs from persisted workflow definitions.
// Job registrations are in-memory only, so a restart rebuilds them from the
// trigger config stored with each active workflow.
func recoverJobs(ctx context.Context, workflows store.WorkflowRepository, sched *scheduler.Scheduler, logger *slog.Logger) error {
	all, err := workflows.ListWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("listing workflows: %w", err)
	}

	recovered := 0
	for _, wf := range all {
		if wf.Status != store.WorkflowActive {
			continue
		}

		job := &scheduler.Job{
			ID:         "job_" + wf.ID,
			UserID:     wf.UserID,
			WorkflowID: wf.ID,
			Status:     scheduler.StatusActive,
		}

		var regErr error
		switch wf.TriggerType {
		case store.TriggerScheduled:
			job.Type = scheduler.TypeCron
			job.Schedule = wf.TriggerConfig["schedule"]
			regErr = sched.RegisterCronJob(job)
		case store.TriggerWebhook:
			job.Type = scheduler.TypeWebhook
			job.WebhookPath = wf.TriggerConfig["path"]
			regErr = sched.RegisterWebhook(job)
		case store.TriggerEvent:
			job.Type = scheduler.TypeEvent
			job.EventType = wf.TriggerConfig["event"]
			regErr = sched.RegisterEventListener(job)
		default:
			continue
		}

		if regErr != nil {
			logger.Warn("skipping workflow with invalid trigger config",
				"workflow_id", wf.ID,
				"trigger_type", wf.TriggerType,
				"error", regErr,
			)
			continue
		}
		recovered++
	}

	logger.Info("recovered scheduled jobs", "count", recovered)
	return nil
}

func runTask(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: loomd task \"<request>\"")
	}
	input := strings.Join(os.Args[2:], " ")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	res := rt.orch.ExecuteTask(ctx, input, "local")

	cyan := color.New(color.FgCyan)
	if res.Intent != nil {
		cyan.Printf("Intent: %s (confidence %.2f)\n", res.Intent.Kind, res.Intent.Confidence)
	}
	if res.Plan != nil {
		for _, step := range res.Plan.Steps {
			printStepLine(step.Agent, step.Action, string(step.Status), step.Err)
		}
	}
	printOutcome(res.Success, res.Err)
	return nil
}

func runChain(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: loomd chain \"<goal>\"")
	}
	goal := strings.Join(os.Args[2:], " ")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	res := rt.orch.ExecuteGoal(ctx, goal, "local")

	if res.Chain != nil && len(res.Chain.Steps) == 0 {
		fmt.Printf("No chain defined for goal: %s\n", goal)
		return nil
	}
	if res.Chain != nil {
		cyan := color.New(color.FgCyan)
		cyan.Printf("Goal: %s (%d steps)\n", res.Chain.Goal, len(res.Chain.Steps))
		for _, cs := range res.Chain.Steps {
			printStepLine(cs.Step.Agent, cs.Step.Action, string(cs.Step.Status), cs.Step.Err)
		}
	}
	printOutcome(res.Success, res.Err)
	return nil
}

func printStepLine(agent, action, status, errMsg string) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	switch status {
	case "completed":
		green.Print("  ✓ ")
	case "failed":
		red.Print("  ✗ ")
	default:
		gray.Print("  - ")
	}
	fmt.Printf("%s.%s", agent, action)
	if errMsg != "" {
		gray.Printf("  (%s)", errMsg)
	}
	fmt.Println()
}

func printOutcome(success bool, errMsg string) {
	fmt.Println()
	if success {
		color.New(color.FgGreen).Println("Done.")
		return
	}
	color.New(color.FgRed).Printf("Failed: %s\n", errMsg)
}

func runAgents() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	status := rt.orch.AgentStatus()
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	green := color.New(color.FgGreen)
	for _, name := range names {
		green.Print("  ● ")
		fmt.Printf("%-20s %s\n", name, status[name])
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("loomd configuration setup")
	fmt.Println("=========================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "loom.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	webhookBase := prompt(reader, "Webhook path prefix", "/hooks")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Scheduler
	fmt.Println("\n--- Scheduler Configuration ---")
	schedEnabled := prompt(reader, "Enable background scheduler?", "yes")
	enabled := strings.ToLower(schedEnabled) == "yes" || strings.ToLower(schedEnabled) == "y"
	defaultInterval := prompt(reader, "Default schedule interval", "1h")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# loomd configuration\n")
	cfg.WriteString("# Generated by loomd init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString(fmt.Sprintf("  webhook_base: \"%s\"\n", webhookBase))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("scheduler:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", enabled))
	cfg.WriteString(fmt.Sprintf("  default_interval: \"%s\"\n", defaultInterval))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the daemon:")
	fmt.Printf("  loomd serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
