// ABOUTME: Entry point for rcon-gateway, the HTTP command gateway for RCON game server fleets
// ABOUTME: Dispatches the serve, init, token, apikey, health and servers subcommands

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/rcon-gateway/internal/config"
	"github.com/2389/rcon-gateway/internal/gateway"
)

// Version is set at build time.
var version = "dev"

const banner = `
                                                _
 _ __ ___ ___  _ __         __ _  __ _| |_ _____      ____ _ _   _
| '__/ __/ _ \| '_ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | | (_| (_) | | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_|  \___\___/|_| |_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                           |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: RCON_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/rcon-gateway/gateway.yaml > ~/.config/rcon-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RCON_GATEWAY_CONFIG"); envPath != "" {
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

	return filepath.Join(configDir, "rcon-gateway", "gateway.yaml")
}

// getDataPath returns the directory for the API key database.
// Priority: XDG_DATA_HOME/rcon-gateway > ~/.local/share/rcon-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "rcon-gateway")
}

func usage() {
	fmt.Println("Usage: rcon-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the gateway")
	fmt.Println("  init                                Create a new config file interactively")
	fmt.Println("  token --subject NAME [--ttl 720h]   Issue a JWT API token")
	fmt.Println("  apikey create --name NAME           Create a stored API key")
	fmt.Println("  apikey list                         List stored API keys")
	fmt.Println("  apikey revoke --id ID               Revoke a stored API key")
	fmt.Println("  health                              Check gateway health")
	fmt.Println("  servers                             List servers (token from RCON_GATEWAY_TOKEN)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "token":
		err = runToken(args)
	case "apikey":
		err = runAPIKey(ctx, args, os.Stdout)
	case "health":
		err = runHealth(ctx)
	case "servers":
		err = runServers(ctx, os.Stdout)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
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

	logger := setupLogger(cfg.Logging, os.Stdout)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Servers:   %d\n", len(cfg.Servers))
	green.Print("    ▶ ")
	fmt.Printf("Reconnect: %s", cfg.Agents.ReconnectStrategy)
	if cfg.Agents.MaxAttempts > 0 {
		gray.Printf(" (max %d attempts)", cfg.Agents.MaxAttempts)
	}
	fmt.Println()
	fmt.Println()

	logger.Info("starting rcon-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"servers", len(cfg.Servers),
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// baseURL returns the gateway's HTTP base URL for the client subcommands.
// RCON_GATEWAY_URL overrides the address derived from config.
func baseURL(cfg *config.Config) string {
	if envURL := os.Getenv("RCON_GATEWAY_URL"); envURL != "" {
		return envURL
	}
	if cfg.Tailscale.Enabled {
		return "http://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Server.HTTPAddr
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	for _, path := range []string{"/health", "/health/ready"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(cfg)+path, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, body)
		}
		fmt.Printf("%-14s %s\n", path, body)
	}
	return nil
}

// serverListing mirrors the /list envelope.
type serverListing struct {
	Error    bool   `json:"error"`
	Message  string `json:"message"`
	Response []struct {
		Hostname string `json:"hostname"`
		Name     string `json:"name"`
		IP       string `json:"ip"`
		Port     int    `json:"port"`
		State    string `json:"state"`
	} `json:"response"`
}

func runServers(ctx context.Context, out io.Writer) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	token := os.Getenv("RCON_GATEWAY_TOKEN")
	if token == "" {
		return fmt.Errorf("RCON_GATEWAY_TOKEN is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(cfg)+"/list?token="+url.QueryEscape(token), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}
	defer resp.Body.Close()

	var listing serverListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if listing.Error {
		return fmt.Errorf("gateway: %s", listing.Message)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tHOSTNAME\tSTATE")
	for _, s := range listing.Response {
		state := s.State
		if state == "authenticated" {
			state = color.GreenString(state)
		} else {
			state = color.YellowString(state)
		}
		addr := net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", addr, s.Name, s.Hostname, state)
	}
	return tw.Flush()
}
