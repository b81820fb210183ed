package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/robofleet/config"
	"github.com/kilianp07/robofleet/core/fleet"
	"github.com/kilianp07/robofleet/infra/store"
)

var (
	snapshotID    int64
	snapshotLimit int
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect stored fleet snapshots",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the latest snapshot as JSON",
	RunE:  runSnapshotShow,
}

var snapshotHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored snapshots (sqlite backend)",
	RunE:  runSnapshotHistory,
}

func init() {
	snapshotShowCmd.Flags().Int64Var(&snapshotID, "id", 0, "snapshot id (sqlite backend)")
	snapshotHistoryCmd.Flags().IntVarP(&snapshotLimit, "limit", "n", 20, "number of snapshots")
	snapshotCmd.AddCommand(snapshotShowCmd, snapshotHistoryCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func openStore() (store.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.Persistence.Enabled() {
		return nil, errors.New("persistence is disabled in the configuration")
	}
	return store.New(cfg.Persistence.Module())
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var snap fleet.Snapshot
	if snapshotID > 0 {
		sq, ok := st.(*store.SQLiteStore)
		if !ok {
			return errors.New("--id needs the sqlite backend")
		}
		snap, err = sq.LoadID(ctx, snapshotID)
	} else {
		snap, err = st.Load(ctx)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func runSnapshotHistory(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	sq, ok := st.(*store.SQLiteStore)
	if !ok {
		return errors.New("history needs the sqlite backend")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	infos, err := sq.History(ctx, snapshotLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, i := range infos {
		_, _ = fmt.Fprintf(out, "%4d  %s  t=%-9.2f robots=%-3d session=%s\n",
			i.ID, i.SavedAt.Format(time.RFC3339), i.Time, i.Robots, i.SessionID)
	}
	return nil
}
