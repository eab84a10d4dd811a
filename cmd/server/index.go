package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrhollen/SalesAgent/internal/parsing"
)

var (
	indexUser      string
	indexChunkSize int
)

var indexCmd = &cobra.Command{
	Use:   "index <glob>...",
	Short: "Index PDF and text files for a user",
	Long: `Extracts text from every PDF, .txt and .md file matching the given
patterns and indexes it for the user. Patterns support ** for recursive
matching, e.g. "docs/**/*.pdf".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexUser, "user", "", "user that owns the indexed documents")
	indexCmd.Flags().IntVar(&indexChunkSize, "chunk-size", 0, "characters per chunk (default from config)")
	_ = indexCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(indexCmd)
}

// collectFiles expands patterns into a sorted, de-duplicated list of
// supported files.
func collectFiles(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() || !parsing.Supported(match) {
				continue
			}
			path := filepath.Clean(match)
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no PDF or text files matched")
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("indexing"),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var failed, chunks int
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := indexFile(cmd, a, path)
		if err != nil {
			failed++
			a.logger.Error("failed to index file", "path", path, "error", err)
		}
		chunks += n

		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	cmd.Printf("indexed %d of %d files (%d chunks) for %s\n", len(files)-failed, len(files), chunks, indexUser)
	if failed > 0 {
		return fmt.Errorf("%d files failed to index", failed)
	}
	return nil
}

func indexFile(cmd *cobra.Command, a *app, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	text, err := parsing.ExtractText(path, data)
	if err != nil {
		return 0, err
	}

	res, err := a.service.Index(cmd.Context(), indexUser, filepath.Base(path), text, indexChunkSize)
	if err != nil {
		return 0, err
	}
	return res.ChunkCount, nil
}
