package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goliatone/go-store-cache/cache"
	"github.com/goliatone/go-store-cache/pkg/di"
	"github.com/goliatone/go-store-cache/storecache"
)

// Record is the item type written by the demo command.
type Record struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"`
	Team      string    `json:"team" msgpack:"team"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

func (r Record) GetID() string { return r.ID }

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Seed the backing store and show cached, stale and bypassed reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(viper.GetViper())
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")
		return runDemo(cmd.Context(), cmd.OutOrStdout(), settings, count)
	},
}

func init() {
	demoCmd.Flags().Int("count", 6, "number of records to seed")
	rootCmd.AddCommand(demoCmd)
}

type demoReport struct {
	Store    string              `json:"store"`
	Seeded   int                 `json:"seeded"`
	Team     string              `json:"team"`
	Cached   []string            `json:"cached"`
	Stale    string              `json:"stale"`
	Bypassed string              `json:"bypassed"`
	Reloaded string              `json:"reloaded"`
	TeamSize int                 `json:"team_size_after_invalidate"`
	Resident int                 `json:"resident"`
	Window   string              `json:"consistency_window"`
	Items    cache.StatsSnapshot `json:"items"`
	Index    cache.StatsSnapshot `json:"index"`
	HitRatio float64             `json:"hit_ratio"`
}

func runDemo(ctx context.Context, w io.Writer, settings Settings, count int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	options, err := settings.Options()
	if err != nil {
		return fmt.Errorf("invalid cache options: %w", err)
	}

	backing, closeStore, err := openStore[Record](ctx, settings.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	container, err := di.NewContainer(options, di.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer container.Close()

	records, err := di.NewRefCachingStore[Record](container, backing, "records")
	if err != nil {
		return err
	}

	teams := []string{"red", "blue"}
	var first Record
	for i := range count {
		team := teams[i%len(teams)]
		rec := Record{
			ID:        uuid.NewString(),
			Name:      fmt.Sprintf("record-%d", i),
			Team:      team,
			UpdatedAt: time.Now().UTC(),
		}
		if err := records.CreateWithRefs(ctx, rec, []string{team}); err != nil {
			return fmt.Errorf("seed %s: %w", rec.ID, err)
		}
		if i == 0 {
			first = rec
		}
	}
	slog.Info("seeded records", "count", count, "store", settings.Store.Driver)

	report := demoReport{
		Seeded: count,
		Team:   first.Team,
		Store:  settings.Store.Driver,
		Window: records.ConsistencyWindow().String(),
	}

	for range 3 {
		items, err := records.GetByRefID(ctx, first.Team)
		if err != nil {
			return err
		}
		report.Cached = names(items)
	}

	updated := first
	updated.Name = first.Name + "-renamed"
	updated.UpdatedAt = time.Now().UTC()
	if err := records.Update(ctx, updated); err != nil {
		return err
	}

	if report.Stale, err = nameOf(ctx, records, first.ID); err != nil {
		return err
	}
	if report.Bypassed, err = nameOf(storecache.WithBypass(ctx), records, first.ID); err != nil {
		return err
	}

	records.Invalidate(first.ID)
	if report.Reloaded, err = nameOf(ctx, records, first.ID); err != nil {
		return err
	}

	if err := records.CreateWithRefs(ctx, Record{ID: uuid.NewString(), Name: "late", Team: first.Team}, []string{first.Team}); err != nil {
		return err
	}
	records.InvalidateRefs(first.Team)
	items, err := records.GetByRefID(ctx, first.Team)
	if err != nil {
		return err
	}
	report.TeamSize = len(items)

	resident, err := records.List(ctx)
	if err != nil {
		return err
	}
	report.Resident = len(resident)
	report.Items = records.Stats()
	report.Index = records.IndexStats()
	report.HitRatio = report.Items.HitRatio()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func names(items []Record) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Name
	}
	return out
}

func nameOf(ctx context.Context, s *storecache.RefCachingStore[Record], id string) (string, error) {
	rec, ok, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("record %s not found", id)
	}
	return rec.Name, nil
}
