package main

import (
	"encoding/json"
	"fmt"

	"keyledger/internal/cache"
	"keyledger/internal/config"
	"keyledger/internal/db"
	"keyledger/internal/logger"
	"keyledger/internal/model"
	"keyledger/internal/registry"

	"github.com/spf13/cobra"
)

// newIssueCmd issues a key straight against the configured store, e.g. to bootstrap the first key.
func newIssueCmd() *cobra.Command {
	var req registry.IssueRequest
	var keyType, status string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new API key and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, _, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			log := logger.New(cfg.Debug)
			defer func() { _ = log.Sync() }()

			store, err := db.NewService(cfg.Database, log)
			if err != nil {
				return err
			}
			defer store.Close()

			// A shared cache is invalidated so running servers drop stale listings.
			c, err := cache.New(cfg.Cache)
			if err != nil {
				return err
			}
			defer c.Close()

			req.Type = model.KeyType(keyType)
			req.Status = model.KeyStatus(status)
			reg := registry.New(store, c, log, registry.Options{CacheTTL: cfg.Cache.TTL})
			key, err := reg.IssueKey(cmd.Context(), req)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(key, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "unique key name")
	cmd.Flags().StringVar(&keyType, "type", string(model.KeyTypeDev), "key type (dev or prod)")
	cmd.Flags().StringVar(&status, "status", string(model.KeyStatusActive), "initial status (active or inactive)")
	cmd.Flags().Int64Var(&req.MonthlyLimit, "limit", 1000, "monthly usage limit")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
