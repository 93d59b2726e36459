// Package cmd provides CLI commands for the runreport binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runreport/archive"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// ConfigFlag points at a runreport.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to runreport.yaml config file",
	}

	// EnvFileFlag points at a .env file loaded before the environment is read.
	EnvFileFlag = &cli.StringFlag{
		Name:  "env-file",
		Usage: "Path to a .env file (variables already set are kept)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
	}
}

// ArchiveFlags returns the document archive location flags shared by run
// and history.
func ArchiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Archive backend: fs or s3",
			Value: "fs",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Archive location (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "archive-dataset",
			Usage: "Archive dataset ID",
			Value: archive.DefaultDataset,
		},
		&cli.StringFlag{
			Name:  "archive-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "archive-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "archive-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}
