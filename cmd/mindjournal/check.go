package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeefy/mindjournal/internal/slm"
	"github.com/jeefy/mindjournal/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check storage and Ollama connectivity",
	Long:  "Ping the configured store, then report the Ollama version and whether the embedding and generation models are pulled.",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Ollama.Timeout)
	defer cancel()
	out := cmd.OutOrStdout()

	st, err := store.Open(ctx, store.Options{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return fmt.Errorf("storage (%s): %w", cfg.Storage.Driver, err)
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("storage (%s): %w", st.Driver(), err)
	}
	fmt.Fprintf(out, "storage: %s ok\n", st.Driver())

	if cfg.Ollama.Backend == "mock" {
		fmt.Fprintln(out, "ollama: mock backend, nothing to check")
		return nil
	}
	status, err := slm.NewOllama(ollamaOptions(cfg)).Check(ctx)
	if err != nil {
		// entries can still be written with fallback values
		fmt.Fprintf(out, "ollama: unreachable at %s: %v\n", cfg.Ollama.URL, err)
		return nil
	}
	fmt.Fprintf(out, "ollama: version %s (embeddings supported: %t)\n", status.Version, status.SupportsEmbeddings)
	fmt.Fprintf(out, "  embed model %s: %s\n", status.EmbedModel, readiness(status.EmbedModelReady))
	fmt.Fprintf(out, "  generate model %s: %s\n", status.GenerateModel, readiness(status.GenerateModelReady))
	if !status.Ready() {
		fmt.Fprintln(out, "entries will be stored with fallback values until the models are available")
	}
	return nil
}

func readiness(ok bool) string {
	if ok {
		return "ready"
	}
	return "missing (run: ollama pull <model>)"
}
