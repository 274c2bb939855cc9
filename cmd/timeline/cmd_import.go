/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/timeline/internal/cache"
	"github.com/friendsincode/timeline/internal/channel"
	"github.com/friendsincode/timeline/internal/db"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import channels from a YAML file",
	Long:  "Create channels and their weekly slots from a YAML channel list in the configured database",
	RunE:  runImport,
}

var (
	importFile    string
	importReplace bool
	importDryRun  bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFile, "file", "", "Path to the channel YAML file (required)")
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Delete existing channels before importing")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate the file without writing")
	_ = importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(importFile)
	if err != nil {
		return fmt.Errorf("open channel file: %w", err)
	}
	defer f.Close()

	inputs, err := channel.ImportYAML(f)
	if err != nil {
		return err
	}
	if importDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%d channels valid\n", len(inputs))
		return nil
	}

	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Running servers pick the change up on their next tick once the shared
	// channel cache is cleared.
	var entityCache *cache.Cache
	if cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		entityCache, err = cache.New(cacheCfg, logger)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		defer entityCache.Close()
	}

	store := channel.NewStore(database, entityCache, nil, logger)
	created, err := store.Import(context.Background(), inputs, importReplace)
	if err != nil {
		return err
	}

	logger.Info().Int("channels", created).Bool("replace", importReplace).Msg("import complete")
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d channels\n", created)
	return nil
}
