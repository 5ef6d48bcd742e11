package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write <text>",
	Short: "Write a journal entry",
	Long:  "Embed, reflect on and store an entry without going through the HTTP API. The stored entry is printed as JSON.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWrite,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal entries, newest first",
	RunE:  runList,
}

var (
	listLimit     int
	listEmbedding bool
)

func init() {
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of entries to show (0 = all)")
	listCmd.Flags().BoolVar(&listEmbedding, "embedding", false, "Include embeddings in the output")
}

func runWrite(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.journal.CreateEntry(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.journal.ListEntries(cmd.Context())
	if err != nil {
		return err
	}
	if listLimit > 0 && len(entries) > listLimit {
		entries = entries[:listLimit]
	}
	if !listEmbedding {
		for _, e := range entries {
			e.Embedding = nil
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
