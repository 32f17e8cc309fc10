// ABOUTME: Entry point for the tutor-gateway server
// ABOUTME: Serves the SSE tool gateway and operator approval endpoints

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/stepfn/tutor-gateway/internal/config"
	"github.com/stepfn/tutor-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _         _                               _
| |_ _   _| |_ ___  _ __ ___ __ _  __ _| |_ _____      ____ _ _   _
| __| | | | __/ _ \| '__|____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| |_| |_| | || (_) | |  |____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__|\__,_|\__\___/|_|        \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                              |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: TUTOR_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/tutor-gateway/gateway.yaml > ~/.config/tutor-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TUTOR_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "tutor-gateway", "gateway.yaml")
}

// getDataPath returns the path to the tutor-gateway data directory.
// Priority: XDG_DATA_HOME/tutor-gateway > ~/.local/share/tutor-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "tutor-gateway")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: tutor-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the gateway server")
		fmt.Println("  init    Create a new config file interactively")
		fmt.Println("  health  Check gateway health")
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

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Messages: %s\n", cfg.MCP.MessagesPath)

	if cfg.OpenAI.APIKey != "" {
		green.Print("    ▶ ")
		fmt.Printf("Tutor:    ")
		cyan.Print(cfg.OpenAI.Model)
		fmt.Println()
	}
	if cfg.Wolfram.AppID != "" {
		green.Print("    ▶ ")
		fmt.Println("Wolfram:  enabled")
	}
	if cfg.Storage.Endpoint != "" {
		green.Print("    ▶ ")
		fmt.Printf("Uploads:  ")
		cyan.Print(cfg.Storage.Bucket)
		gray.Printf(" @ %s", cfg.Storage.Endpoint)
		fmt.Println()
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Print("    ▶ ")
		fmt.Println("Auth:     disabled (no jwt_secret)")
	}

	fmt.Println()

	logger.Info("starting tutor-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
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

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
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

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("tutor-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

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
	messagesPath := prompt(reader, "Inbound messages path", config.DefaultMessagesPath)

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite audit database path", defaultDbPath)

	// Tutor tools
	fmt.Println("\n--- Tutor Tools (OpenAI) ---")
	enableTutor := prompt(reader, "Enable tutor tools?", "yes")
	tutorEnabled := strings.ToLower(enableTutor) == "yes" || strings.ToLower(enableTutor) == "y"

	var model string
	if tutorEnabled {
		model = prompt(reader, "Completion model", config.DefaultModel)
	}

	// Wolfram
	fmt.Println("\n--- WolframAlpha ---")
	enableWolfram := prompt(reader, "Enable ask_wolfram tool?", "no")
	wolframEnabled := strings.ToLower(enableWolfram) == "yes" || strings.ToLower(enableWolfram) == "y"

	// Object storage
	fmt.Println("\n--- Upload Storage (S3-compatible) ---")
	enableStorage := prompt(reader, "Enable image uploads?", "no")
	storageEnabled := strings.ToLower(enableStorage) == "yes" || strings.ToLower(enableStorage) == "y"

	var storageEndpoint, storageBucket, storageRegion string
	if storageEnabled {
		storageEndpoint = prompt(reader, "Storage endpoint", "localhost:9000")
		storageBucket = prompt(reader, "Bucket name", "tutor-uploads")
		storageRegion = prompt(reader, "Region", "us-east-1")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# tutor-gateway configuration\n")
	cfg.WriteString("# Generated by tutor-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("mcp:\n")
	cfg.WriteString(fmt.Sprintf("  messages_path: \"%s\"\n", messagesPath))
	cfg.WriteString("  strict_session_routing: false\n")
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString("  jwt_secret: \"${TUTOR_GATEWAY_JWT_SECRET}\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	if tutorEnabled {
		cfg.WriteString("openai:\n")
		cfg.WriteString("  api_key: \"${OPENAI_API_KEY}\"\n")
		cfg.WriteString(fmt.Sprintf("  model: \"%s\"\n", model))
		cfg.WriteString("\n")
	}

	if wolframEnabled {
		cfg.WriteString("wolfram:\n")
		cfg.WriteString("  app_id: \"${WOLFRAM_APP_ID}\"\n")
		cfg.WriteString("\n")
	}

	if storageEnabled {
		cfg.WriteString("storage:\n")
		cfg.WriteString(fmt.Sprintf("  endpoint: \"%s\"\n", storageEndpoint))
		cfg.WriteString("  access_key: \"${STORAGE_ACCESS_KEY}\"\n")
		cfg.WriteString("  secret_key: \"${STORAGE_SECRET_KEY}\"\n")
		cfg.WriteString(fmt.Sprintf("  bucket: \"%s\"\n", storageBucket))
		cfg.WriteString(fmt.Sprintf("  region: \"%s\"\n", storageRegion))
		cfg.WriteString("  use_ssl: false\n")
		cfg.WriteString("\n")
	}

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
	fmt.Println("\nTo start the server:")
	fmt.Printf("  tutor-gateway serve\n")

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
