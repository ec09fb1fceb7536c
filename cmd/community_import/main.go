// Package main imports wallet addresses into a community collection.
// Input is a file with one address per line or a JSON array of addresses.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/whale-role-bot/internal/config"
	"github.com/whale-role-bot/internal/logging"
	"github.com/whale-role-bot/internal/storage"
	"github.com/whale-role-bot/internal/types"
)

func main() {
	var (
		collection = flag.String("collection", "", "Community collection name (e.g. test1)")
		file       = flag.String("file", "", "Path to the address list")
	)
	flag.Parse()

	if *collection == "" || *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("collection", *collection)

	raw, err := os.ReadFile(*file)
	if err != nil {
		logger.WithError(err).Fatal("Failed to read address file")
	}

	addresses, err := parseAddresses(raw)
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse address file")
	}

	valid := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if !types.IsValidAddress(a) {
			logger.WithField("address", a).Warn("Skipping invalid address")
			continue
		}
		valid = append(valid, a)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	repo := storage.NewCommunityRepository(postgres)
	if err := repo.EnsureCollection(ctx, *collection); err != nil {
		logger.WithError(err).Fatal("Failed to prepare collection")
	}

	inserted, err := repo.AddAddresses(ctx, *collection, valid)
	if err != nil {
		logger.WithError(err).Fatal("Failed to import addresses")
	}

	logger.WithFields(map[string]interface{}{
		"read":     len(addresses),
		"valid":    len(valid),
		"inserted": inserted,
	}).Info("Community addresses imported")
}

// parseAddresses accepts a JSON array of strings or one address per line.
// Blank lines and lines starting with # are ignored.
func parseAddresses(raw []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var addresses []string
		if err := json.Unmarshal(trimmed, &addresses); err != nil {
			return nil, fmt.Errorf("invalid JSON address list: %w", err)
		}
		return addresses, nil
	}

	var addresses []string
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addresses = append(addresses, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}
