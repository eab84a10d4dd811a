package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrhollen/SalesAgent/internal/models"
)

var (
	searchUser      string
	searchLimit     int
	searchJSON      bool
	contextUser     string
	contextMaxChunk int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show a user's chunks most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Print the formatted context block for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		text, err := a.service.BuildContext(cmd.Context(), strings.Join(args, " "), contextUser, contextMaxChunk)
		if err != nil {
			return err
		}
		if text == "" {
			cmd.Println("No context found.")
			return nil
		}

		cmd.Println(text)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchUser, "user", "", "user whose documents are searched")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	_ = searchCmd.MarkFlagRequired("user")

	contextCmd.Flags().StringVar(&contextUser, "user", "", "user whose documents are searched")
	contextCmd.Flags().IntVar(&contextMaxChunk, "max-chunks", 5, "maximum number of chunks in the context")
	_ = contextCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(searchCmd, contextCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.service.Search(cmd.Context(), strings.Join(args, " "), searchUser, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	printResults(cmd, results)
	return nil
}

func printResults(cmd *cobra.Command, results []models.ScoredChunk) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		cmd.Printf("  [%d] %s #%d (%.3f)\n", i+1, r.DocumentID, r.ChunkIndex, r.Similarity)
		cmd.Printf("      %s\n", strings.ReplaceAll(r.ChunkText, "\n", " "))
		cmd.Println()
	}
}
