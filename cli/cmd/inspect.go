package cmd

import (
	"fmt"
	"slices"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runreport/cli/render"
	"github.com/pithecene-io/runreport/iox"
	"github.com/pithecene-io/runreport/ipc"
	"github.com/pithecene-io/runreport/report"
	"github.com/pithecene-io/runreport/runtime"
	"github.com/pithecene-io/runreport/types"
)

// InspectRow is one host in the inspect table.
type InspectRow struct {
	Host    string `json:"host"`
	Facts   int    `json:"facts"`
	Logs    int    `json:"logs"`
	Applied int    `json:"applied"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error"`
}

// InspectCommand returns the inspect command.
// Inspect builds the facts and report documents a run would send from an
// event stream, without contacting Foreman.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the documents a job event stream would publish",
		ArgsUsage: "[events-file]",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "format-in",
				Usage: "Event stream format: jsonl or msgpack",
				Value: string(ipc.FormatJSONLines),
			},
			&cli.StringSliceFlag{
				Name:  "host",
				Usage: "Only show these hosts (repeatable)",
			},
			&cli.StringFlag{
				Name:  "reporter",
				Usage: "Reporter tag placed in config reports",
				Value: types.Reporter,
			},
		),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c.String("format"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	format, err := ipc.ParseFormat(c.String("format-in"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --format-in: %v", err), 1)
	}

	path := "-"
	if c.NArg() > 0 {
		path = c.Args().First()
	}
	events, err := openEvents(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer iox.DiscardClose(events)

	decoder, err := ipc.NewDecoder(format, events)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	preview, err := runtime.BuildPreview(c.Context, decoder, &report.Assembler{Reporter: c.String("reporter")}, nil)
	if err != nil {
		return cli.Exit(fmt.Sprintf("stream error: %v", err), runtime.ExitCodeStreamError)
	}
	filterPreview(preview, c.StringSlice("host"))

	if r.Format() == render.FormatTable {
		return r.Render(inspectRows(preview))
	}
	return r.Render(preview)
}

// filterPreview keeps only the named hosts. No names keeps everything.
func filterPreview(p *runtime.Preview, hosts []string) {
	if len(hosts) == 0 {
		return
	}
	p.Hosts = slices.DeleteFunc(p.Hosts, func(h runtime.PreviewHost) bool {
		return !slices.Contains(hosts, h.Host)
	})
}

func inspectRows(p *runtime.Preview) []InspectRow {
	rows := make([]InspectRow, 0, len(p.Hosts))
	for _, h := range p.Hosts {
		row := InspectRow{Host: h.Host, Error: h.Error}
		if h.Facts != nil {
			row.Facts = len(h.Facts.Facts.AnsibleFacts)
		}
		if h.Report != nil {
			row.Logs = len(h.Report.ConfigReport.Logs)
			row.Applied = h.Report.ConfigReport.Status.Applied
			row.Failed = h.Report.ConfigReport.Status.Failed
			row.Skipped = h.Report.ConfigReport.Status.Skipped
		}
		rows = append(rows, row)
	}
	return rows
}
