package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runreport/archive"
	"github.com/pithecene-io/runreport/cli/render"
)

// HistoryRow is one archived document in the history table.
type HistoryRow struct {
	Kind       string `json:"kind"`
	Host       string `json:"host"`
	Delivered  bool   `json:"delivered"`
	ArchivedAt string `json:"archived_at"`
	Error      string `json:"error"`
}

// HistoryCommand returns the history command.
// History lists the documents archived for one run and whether Foreman
// accepted them. It reads the archive only.
func HistoryCommand() *cli.Command {
	flags := append(ReadOnlyFlags(), ConfigFlag,
		&cli.StringFlag{
			Name:  "kind",
			Usage: "Only show one document kind: facts or report",
		},
	)
	return &cli.Command{
		Name:      "history",
		Usage:     "List archived documents for a run",
		ArgsUsage: "<run-id>",
		Flags:     append(flags, ArchiveFlags()...),
		Action:    historyAction,
	}
}

func historyAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("run-id required", 1)
	}
	runID := c.Args().First()

	r, err := render.NewRenderer(c.String("format"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	kind := c.String("kind")
	switch kind {
	case "", archive.KindFacts, archive.KindReport:
	default:
		return cli.Exit(fmt.Sprintf("invalid --kind %q (must be facts or report)", kind), 1)
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	ac, err := resolveArchive(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if ac == nil {
		return cli.Exit("--archive-path is required", 1)
	}

	factory, err := ac.target.Factory(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	dataset := ac.dataset
	if dataset == "" {
		dataset = archive.DefaultDataset
	}
	ds, err := archive.OpenDataset(dataset, factory)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open archive: %v", err), 1)
	}

	entries, err := archive.ListRun(c.Context, ds, runID, kind)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read archive: %v", err), 1)
	}

	if r.Format() == render.FormatTable {
		return r.Render(historyRows(entries))
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	return r.Render(entries)
}

func historyRows(entries []archive.Entry) []HistoryRow {
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, HistoryRow{
			Kind:       e.Kind,
			Host:       e.Host,
			Delivered:  e.Delivered,
			ArchivedAt: e.ArchivedAt,
			Error:      e.Error,
		})
	}
	return rows
}
