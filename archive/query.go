package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// Entry is an archived record as read back from the dataset.
type Entry struct {
	Kind       string         `json:"kind"`
	Day        string         `json:"day"`
	RunID      string         `json:"run_id"`
	Host       string         `json:"host"`
	URL        string         `json:"url"`
	Delivered  bool           `json:"delivered"`
	Error      string         `json:"error,omitempty"`
	ArchivedAt string         `json:"archived_at"`
	Document   map[string]any `json:"document"`
}

// ListRun returns every record archived for runID, ordered by kind then
// host. An empty kind matches both kinds.
func ListRun(ctx context.Context, ds lode.Dataset, runID, kind string) ([]Entry, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var entries []Entry
	for _, snap := range snapshots {
		if !snapshotMatches(snap, "run_id", runID) || !snapshotMatches(snap, "kind", kind) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			e := entryFromRow(row)
			// Record fields are authoritative; the manifest check is a pre-filter.
			if e.RunID != runID || (kind != "" && e.Kind != kind) {
				continue
			}
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Host < entries[j].Host
	})
	return entries, nil
}

func entryFromRow(row map[string]any) Entry {
	doc, _ := row["document"].(map[string]any)
	delivered, _ := row["delivered"].(bool)
	return Entry{
		Kind:       toString(row["kind"]),
		Day:        toString(row["day"]),
		RunID:      toString(row["run_id"]),
		Host:       toString(row["host"]),
		URL:        toString(row["url"]),
		Delivered:  delivered,
		Error:      toString(row["error"]),
		ArchivedAt: toString(row["archived_at"]),
		Document:   doc,
	}
}

// snapshotMatches checks if any file in the snapshot sits under the
// key=value partition. An empty value matches everything.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
