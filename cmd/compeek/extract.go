package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/compeek/compeek/internal/agent"
)

func newExtractCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Read identity fields from a document image and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			data, mimeType, err := readDocument(file)
			if err != nil {
				return err
			}
			client, err := a.llmClient()
			if err != nil {
				return err
			}
			out, err := agent.ExtractDocument(cmd.Context(), client, a.cfg.Agent.Model, data, mimeType)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Document image (png, jpeg, gif, webp)")
	return cmd
}
