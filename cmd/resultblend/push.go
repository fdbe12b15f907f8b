package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bitmuster/resultblend/pkg/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type pushOptions struct {
	server   string
	apiKey   string
	header   string
	output   string
	insecure bool
	timeout  time.Duration
}

func newPushCmd(log *logrus.Logger) *cobra.Command {
	opts := pushOptions{}

	cmd := &cobra.Command{
		Use:   "push [flags] FILE...",
		Short: "Upload result files and download the blend",
		Long: `Upload every FILE under its base name, print the staged names, then
blend them and write the spreadsheet to --output.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd.Context(), log, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "https://localhost:44001", "Server base URL")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", os.Getenv("API_KEY"), "API key (default $API_KEY)")
	cmd.Flags().StringVar(&opts.header, "header", "theapikey", "API key header name")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "out.ods", "Where to write the spreadsheet")
	cmd.Flags().BoolVarP(&opts.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "Request timeout")

	return cmd
}

func runPush(ctx context.Context, log *logrus.Logger, opts pushOptions, files []string) error {
	c := client.New(client.Config{
		BaseURL:  opts.server,
		APIKey:   opts.apiKey,
		Header:   opts.header,
		Insecure: opts.insecure,
		Timeout:  opts.timeout,
	})

	for _, path := range files {
		if err := uploadFile(ctx, c, path); err != nil {
			return err
		}

		log.WithField("file", path).Info("Uploaded")
	}

	names, err := c.List(ctx)
	if err != nil {
		return fmt.Errorf("listing staged documents: %w", err)
	}

	fmt.Println(names)

	artifact, err := c.Blend(ctx)
	if err != nil {
		return fmt.Errorf("blending: %w", err)
	}

	if err := os.WriteFile(opts.output, artifact.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", opts.output, err)
	}

	log.WithFields(logrus.Fields{
		"blend_id": artifact.ID,
		"digest":   artifact.Digest,
		"bytes":    len(artifact.Data),
		"output":   opts.output,
	}).Info("Blend written")

	return nil
}

func uploadFile(ctx context.Context, c *client.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	defer f.Close()

	if err := c.Upload(ctx, filepath.Base(path), f); err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}

	return nil
}
