// ABOUTME: Interactive creation of a gateway config file
// ABOUTME: Generates a static token and JWT secret and optionally records servers

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389/rcon-gateway/internal/config"
)

// initFile is the subset of the config written by init.
type initFile struct {
	Server struct {
		HTTPAddr       string `yaml:"http_addr,omitempty"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"server"`
	Tailscale *tailscaleSection `yaml:"tailscale,omitempty"`
	Database struct {
		Path string `yaml:"path,omitempty"`
	} `yaml:"database"`
	Auth struct {
		Tokens    []string `yaml:"tokens"`
		JWTSecret string   `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Agents struct {
		ReconnectStrategy string `yaml:"reconnect_strategy"`
		ReconnectDelay    string `yaml:"reconnect_delay"`
	} `yaml:"agents"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Servers   []config.ServerEntry `yaml:"servers,omitempty"`
	Inventory string               `yaml:"inventory,omitempty"`
}

type tailscaleSection struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key,omitempty"`
	Ephemeral bool   `yaml:"ephemeral"`
}

func randomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("rcon-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDBPath := filepath.Join(getDataPath(), "gateway.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var f initFile

	fmt.Println("\n--- HTTP API ---")
	f.Server.HTTPAddr = prompt(reader, "HTTP address", "localhost:9000")
	f.Server.RequestTimeout = prompt(reader, "Request timeout", "30s")

	fmt.Println("\n--- Tailscale ---")
	if yes(prompt(reader, "Enable Tailscale?", "no")) {
		f.Tailscale = &tailscaleSection{Enabled: true}
		f.Tailscale.Hostname = prompt(reader, "Tailscale hostname", "rcon-gateway")
		f.Tailscale.AuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		f.Tailscale.Ephemeral = yes(prompt(reader, "Ephemeral node?", "no"))
	}

	fmt.Println("\n--- Credentials ---")
	token, err := randomSecret(24)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	jwtSecret, err := randomSecret(32)
	if err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	f.Auth.Tokens = []string{token}
	f.Auth.JWTSecret = jwtSecret
	if yes(prompt(reader, "Store managed API keys in SQLite?", "yes")) {
		f.Database.Path = prompt(reader, "SQLite database path", defaultDBPath)
	}

	fmt.Println("\n--- Reconnect ---")
	f.Agents.ReconnectStrategy = prompt(reader, "Strategy (fixed/exponential)", config.StrategyFixed)
	f.Agents.ReconnectDelay = prompt(reader, "Delay", "1s")

	fmt.Println("\n--- Servers ---")
	f.Inventory = prompt(reader, "Legacy servers.json to import (optional)", "")
	for yes(prompt(reader, "Add a server?", "no")) {
		port, err := strconv.Atoi(prompt(reader, "  Port", "27015"))
		if err != nil {
			fmt.Println("  invalid port, server skipped")
			continue
		}
		f.Servers = append(f.Servers, config.ServerEntry{
			Name:     prompt(reader, "  Name", ""),
			Hostname: prompt(reader, "  Hostname", ""),
			IP:       prompt(reader, "  IP", "127.0.0.1"),
			Port:     config.Port(port),
			Password: prompt(reader, "  RCON password", ""),
		})
	}

	fmt.Println("\n--- Logging ---")
	f.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", "info")
	f.Logging.Format = prompt(reader, "Log format (text/json)", "text")

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	content := "# rcon-gateway configuration\n# Generated by rcon-gateway init\n\n" + string(data)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// Holds secrets.
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if f.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(f.Database.Path), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("API token: %s\n", token)
	fmt.Println("\nTo start the gateway:")
	fmt.Println("  rcon-gateway serve")
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
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
