// ABOUTME: Minimal fake RCON server for end-to-end testing of the gateway
// ABOUTME: Usage: fake-rcon [-addr 127.0.0.1:27015] [-password secret] [-chunk 0]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389/rcon-gateway/internal/rcon/rcontest"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:27015", "listen address")
	password := flag.String("password", "secret", "RCON password")
	chunk := flag.Int("chunk", 0, "split responses into packets of this many bytes (0 = one packet)")
	latency := flag.Duration("latency", 0, "delay before every response")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(*addr, *password, *chunk, *latency, logger); err != nil {
		logger.Error("fake-rcon failed", "error", err)
		os.Exit(1)
	}
}

func run(addr, password string, chunk int, latency time.Duration, logger *slog.Logger) error {
	handler := func(command string) rcontest.Reply {
		reply := rcontest.EchoHandler(command)
		reply.Delay = latency
		logger.Info("command", "command", command, "drop", reply.Drop)
		return reply
	}

	srv := rcontest.NewServer(password, handler)
	srv.ChunkSize = chunk
	if err := srv.Start(addr); err != nil {
		return err
	}
	logger.Info("fake rcon server listening", "addr", srv.Addr())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	logger.Info("shutting down", "accepted", srv.Accepted(), "commands", len(srv.Records()))
	return srv.Close()
}
