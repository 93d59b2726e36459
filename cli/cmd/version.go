package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runreport/cli/render"
	"github.com/pithecene-io/runreport/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Reporter string `json:"reporter"`
}

// VersionCommand returns the version command.
// It never contacts Foreman.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c.String("format"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		resp := VersionResponse{
			Version:  types.Version,
			Commit:   commit,
			Reporter: types.Reporter,
		}
		return r.Render(resp)
	}
}
