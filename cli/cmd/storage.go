package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/reader"
	"github.com/pithecene-io/assay/transcript"
)

// readTimeout bounds Lode read operations against slow object stores.
const readTimeout = 30 * time.Second

// storageReadFlags returns the storage selection flags shared by all
// read commands (inspect, list, stats).
func storageReadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset name for transcripts",
			Value: transcript.DefaultDataset,
		},
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Transcript storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage root: a directory (fs) or bucket-name[/prefix] (s3)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for S3 storage",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint URL (e.g. MinIO, Cloudflare R2)",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Use path-style S3 addressing (required by most S3-compatible providers)",
		},
	}
}

// resolveReader picks the transcript reader for a read command. With a
// storage backend and path the command reads the Lode store directly;
// with neither it falls back to the registered reader, which serves
// stub data until one is registered.
func resolveReader(c *cli.Context) (reader.Reader, error) {
	backend := c.String("storage-backend")
	path := c.String("storage-path")

	switch {
	case backend != "" && path != "":
		ds, err := buildReadDataset(c)
		if err != nil {
			return nil, err
		}
		return reader.NewLodeReader(ds), nil
	case backend != "" || path != "":
		return nil, fmt.Errorf("both --storage-backend and --storage-path are required for Lode reads")
	default:
		return reader.GetReader(), nil
	}
}

// buildReadDataset opens a read-only Lode dataset from the storage
// flags.
func buildReadDataset(c *cli.Context) (lode.Dataset, error) {
	dataset := c.String("storage-dataset")
	switch backend := c.String("storage-backend"); backend {
	case "fs":
		return transcript.NewReadDatasetFS(dataset, c.String("storage-path"))
	case "s3":
		bucket, prefix := transcript.ParseS3Path(c.String("storage-path"))
		return transcript.NewReadDatasetS3(dataset, transcript.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       c.String("storage-region"),
			Endpoint:     c.String("storage-endpoint"),
			UsePathStyle: c.Bool("storage-s3-path-style"),
		})
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", backend)
	}
}

// readContext bounds one read command invocation.
func readContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), readTimeout)
}
