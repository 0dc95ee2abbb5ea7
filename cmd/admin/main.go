// Package main runs the noticeboard admin operator plane.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/noticeboard/internal/platform/config"
	"github.com/louisbranch/noticeboard/internal/platform/otel"
	"github.com/louisbranch/noticeboard/internal/services/admin"
	"github.com/louisbranch/noticeboard/internal/services/admin/announce"
	"github.com/louisbranch/noticeboard/internal/services/admin/stepup"
)

// mainConfig extends the server config with operator credential material.
type mainConfig struct {
	admin.Config
	// CredentialsFile holds the operator credential table as JSON:
	// {"user-id": {"passwordHash": "...", "twoFactorEnabled": false}}.
	CredentialsFile string `env:"NOTICEBOARD_CREDENTIALS_FILE,required"`
	// SeedFile optionally preloads announcements for the mutation endpoints.
	SeedFile string `env:"NOTICEBOARD_SEED_FILE"`
}

func main() {
	log.SetPrefix("[ADMIN] ")

	var cfg mainConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "noticeboard-admin")
	if err != nil {
		config.Exitf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	directory, err := loadDirectory(cfg.CredentialsFile)
	if err != nil {
		config.Exitf("load credentials: %v", err)
	}

	server, err := admin.NewServer(cfg.Config, stepup.NewPasswordVerifier(directory, nil))
	if err != nil {
		config.Exitf("build server: %v", err)
	}
	defer server.Close()

	if cfg.SeedFile != "" {
		if err := seedAnnouncements(server.Announcements(), cfg.SeedFile); err != nil {
			config.Exitf("seed announcements: %v", err)
		}
	}

	if err := server.Run(ctx); err != nil {
		config.Exitf("serve: %v", err)
	}
}

func loadDirectory(path string) (stepup.StaticDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries map[string]struct {
		PasswordHash     string `json:"passwordHash"`
		TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	directory := make(stepup.StaticDirectory, len(entries))
	for userID, entry := range entries {
		directory[userID] = stepup.Credentials{
			PasswordHash:     entry.PasswordHash,
			TwoFactorEnabled: entry.TwoFactorEnabled,
		}
	}
	return directory, nil
}

func seedAnnouncements(service *announce.Service, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []announce.Announcement
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	for _, record := range records {
		service.Seed(record)
	}
	log.Printf("seeded %d announcements", len(records))
	return nil
}
