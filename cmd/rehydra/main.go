// Package main is the Rehydra CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rehydra/rehydra/internal/cli"
	"github.com/rehydra/rehydra/internal/config"
	"github.com/rehydra/rehydra/internal/crypto"
	"github.com/rehydra/rehydra/internal/detect"
	"github.com/rehydra/rehydra/internal/models"
	"github.com/rehydra/rehydra/internal/server"
	"github.com/rehydra/rehydra/internal/session"
	"github.com/rehydra/rehydra/internal/store"
	"github.com/rehydra/rehydra/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/rehydra/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "anonymize":
		runAnonymize()
	case "rehydrate":
		runRehydrate()
	case "cleanup":
		runCleanup()
	case "keygen":
		runKeygen()
	case "version", "--version", "-v":
		fmt.Printf("rehydra version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (per-request detail)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(components.Sessions, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// readText returns the positional args joined by spaces, or stdin when no
// positional args are given (supports piping whole documents through).
func readText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runAnonymize() {
	fs := flag.NewFlagSet("anonymize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run detection locally)")
	sessionID := fs.String("session", "", "session identifier (default: fresh UUID)")
	locale := fs.String("locale", "", "locale hint for the detector")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	text, err := readText(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Println("Usage: rehydra anonymize [flags] <text>  (or pipe text on stdin)")
		os.Exit(1)
	}

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}

	format := cli.OutputText
	if *outputFormat == "json" {
		format = cli.OutputJSON
	}

	var result *models.DetectionResult
	if *serverURL != "" {
		result, err = anonymizeViaHTTP(*serverURL, id, text, *locale)
	} else {
		var components *Components
		components, err = componentsFromConfig(*configPath)
		if err == nil {
			defer components.Close()
			result, err = components.Sessions.Session(id).Anonymize(context.Background(), text, *locale)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Anonymize failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnonymizeResult(os.Stdout, id, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRehydrate() {
	fs := flag.NewFlagSet("rehydrate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run locally)")
	sessionID := fs.String("session", "", "session identifier (required)")
	_ = fs.Parse(os.Args[2:])

	if *sessionID == "" {
		fmt.Println("Usage: rehydra rehydrate --session <id> [flags] <text>")
		os.Exit(1)
	}
	text, err := readText(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}

	var restored string
	if *serverURL != "" {
		restored, err = rehydrateViaHTTP(*serverURL, *sessionID, text)
	} else {
		var components *Components
		components, err = componentsFromConfig(*configPath)
		if err == nil {
			defer components.Close()
			restored, err = components.Sessions.Session(*sessionID).Rehydrate(context.Background(), text)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rehydrate failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(restored)
}

func runCleanup() {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run locally)")
	maxAgeHours := fs.Int("max-age-hours", 24, "delete sessions created more than this many hours ago")
	_ = fs.Parse(os.Args[2:])

	if *maxAgeHours <= 0 {
		fmt.Println("max-age-hours must be positive")
		os.Exit(1)
	}

	var deleted int
	var err error
	if *serverURL != "" {
		deleted, err = cleanupViaHTTP(*serverURL, *maxAgeHours)
	} else {
		var components *Components
		components, err = componentsFromConfig(*configPath)
		if err == nil {
			defer components.Close()
			cutoff := time.Now().Add(-time.Duration(*maxAgeHours) * time.Hour).UnixMilli()
			deleted, err = components.Sessions.Store().Cleanup(context.Background(), cutoff)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d session(s)\n", deleted)
}

func runKeygen() {
	key, err := crypto.GenerateKey(crypto.KeyLength)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Key generation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(base64.StdEncoding.EncodeToString(key))
}

func anonymizeViaHTTP(serverURL, sessionID, text, locale string) (*models.DetectionResult, error) {
	body, err := json.Marshal(map[string]string{"text": text, "locale": locale})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/v1/sessions/%s/anonymize", serverURL, sessionID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.DetectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func rehydrateViaHTTP(serverURL, sessionID, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/api/v1/sessions/%s/rehydrate", serverURL, sessionID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Text, nil
}

func cleanupViaHTTP(serverURL string, maxAgeHours int) (int, error) {
	body, err := json.Marshal(map[string]int{"max_age_hours": maxAgeHours})
	if err != nil {
		return 0, err
	}
	resp, err := http.Post(serverURL+"/api/v1/cleanup", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Deleted, nil
}

// Components holds initialized services.
type Components struct {
	Store    store.Store
	Keys     crypto.KeyProvider
	Sessions *session.Manager
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if fp, ok := c.Keys.(*crypto.FileProvider); ok {
		_ = fp.Close()
	}
}

func componentsFromConfig(configPath string) (*Components, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return initializeComponents(cfg, logger)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	var st store.Store
	var err error
	switch cfg.Storage.Backend {
	case "memory":
		st = store.NewMemoryStore()
	case "sqlite":
		st, err = store.NewSQLiteStore(cfg.Storage.DatabasePath)
	case "bolt":
		st, err = store.NewBoltStore(cfg.Storage.DatabasePath)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var keys crypto.KeyProvider
	switch cfg.Encryption.Provider {
	case "static":
		encoded := os.Getenv(config.KeyEnvVar)
		if encoded == "" {
			_ = st.Close()
			return nil, fmt.Errorf("%s is not set; run 'rehydra keygen' and export the result", config.KeyEnvVar)
		}
		keys, err = crypto.NewStaticProvider(encoded)
	case "file":
		keys, err = crypto.NewFileProvider(cfg.Encryption.KeyFile, logger)
	case "ephemeral":
		logger.Warn("using an ephemeral key; stored sessions will not survive a restart")
		keys, err = crypto.NewEphemeralProvider()
	default:
		err = fmt.Errorf("unknown encryption provider %q", cfg.Encryption.Provider)
	}
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize key provider: %w", err)
	}

	var detector detect.Detector
	switch cfg.Detector.Mode {
	case "regex":
		detector = detect.NewRegexDetector()
	case "remote":
		detector = detect.NewRemoteDetector(cfg.Detector.URL,
			time.Duration(cfg.Detector.TimeoutSeconds)*time.Second)
	default:
		_ = st.Close()
		return nil, fmt.Errorf("unknown detector mode %q", cfg.Detector.Mode)
	}

	policy := models.TagPolicy{ReuseIDsForRepeatedPII: cfg.Policy.ReuseIDsForRepeatedPII}
	mgr := session.NewManager(st, keys, detector, policy, logger)

	return &Components{
		Store:    st,
		Keys:     keys,
		Sessions: mgr,
	}, nil
}

func printUsage() {
	fmt.Println(`rehydra - Reversible PII anonymization service

Usage:
  rehydra server [flags]                      Start the HTTP server
  rehydra anonymize [flags] <text>            Detect and tag PII in text
  rehydra rehydrate --session <id> <text>     Restore original values into tagged text
  rehydra cleanup [flags]                     Delete sessions past the retention cutoff
  rehydra keygen                              Print a fresh base64 encryption key
  rehydra version                             Show version
  rehydra help                                Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/rehydra/config.yaml)
  --debug            Enable debug logging

Anonymize Flags:
  --config string    Config file path (local mode)
  --server string    Server URL (empty = run detection locally)
  --session string   Session identifier (default: fresh UUID)
  --locale string    Locale hint for the detector
  --output string    Output format: text or json (default: text)

Rehydrate Flags:
  --config string    Config file path (local mode)
  --server string    Server URL (empty = run locally)
  --session string   Session identifier (required)

Cleanup Flags:
  --config string        Config file path (local mode)
  --server string        Server URL (empty = run locally)
  --max-age-hours int    Retention cutoff in hours (default: 24)

Examples:
  rehydra keygen > .key && export REHYDRA_KEY=$(cat .key)
  rehydra server
  rehydra anonymize "Contact John at john@example.com"
  echo "Contact John" | rehydra anonymize --output json
  rehydra rehydrate --session 7c9e6679-... 'Contact <PII type="PERSON" id="1"/>'
  rehydra cleanup --max-age-hours 48`)
}
