package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/queries"
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Manage the stored search queries",
}

var queriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the stored queries",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		withQueries(func(a *application, store *queries.Store) {
			list, err := store.Load()
			if err != nil {
				a.logger.Fatal("loading queries", zap.Error(err))
			}
			printJSON(list)
		})
	},
}

var queriesAddCmd = &cobra.Command{
	Use:   "add TEXT...",
	Short: "Add a search query",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		maxPages, _ := cmd.Flags().GetInt("max-pages")
		text := strings.Join(args, " ")

		withQueries(func(a *application, store *queries.Store) {
			list, err := store.Add(queries.Query{Text: text, MaxPages: maxPages})
			if err != nil {
				a.logger.Fatal("adding a query", zap.Error(err))
			}
			a.logger.Info("query added", zap.String("query_key", text), zap.Int("version", list.Version))
		})
	},
}

var queriesRemoveCmd = &cobra.Command{
	Use:   "remove TEXT...",
	Short: "Remove a search query",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		text := strings.Join(args, " ")

		withQueries(func(a *application, store *queries.Store) {
			list, err := store.Remove(text)
			if err != nil {
				a.logger.Fatal("removing a query", zap.Error(err))
			}
			a.logger.Info("query removed",
				zap.String("query_key", text),
				zap.Int("version", list.Version),
				zap.String("backup", store.BackupPath(list.Version-1)),
			)
		})
	},
}

func init() {
	rootCmd.AddCommand(queriesCmd)
	queriesCmd.AddCommand(queriesListCmd, queriesAddCmd, queriesRemoveCmd)

	queriesAddCmd.Flags().Int("max-pages", 0, "page limit for this query (default is acquisition.max-pages)")
}

func withQueries(fn func(*application, *queries.Store)) {
	a := setup(context.Background())
	defer a.Close()

	fn(a, a.queries())
}
