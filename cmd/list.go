package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/identity"
)

const dateLayout = "2006-01-02"

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print stored evaluations as JSON",
	Run: func(cmd *cobra.Command, _ []string) {
		list(cmd)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("query", "q", "", "only evaluations of this query")
	listCmd.Flags().Bool("all-profiles", false, "do not restrict to the current profile")
	listCmd.Flags().Int("min-score", -1, "minimum overall score")
	listCmd.Flags().String("location", "", "location substring")
	listCmd.Flags().String("from", "", "created on or after this date (YYYY-MM-DD)")
	listCmd.Flags().String("to", "", "created before the end of this date (YYYY-MM-DD)")
	listCmd.Flags().String("sort", string(dedup.SortByDate), "sort by score, date or company")
	listCmd.Flags().Int("page", 1, "page number")
	listCmd.Flags().Int("page-size", dedup.DefaultPageSize, "page size")
}

func list(cmd *cobra.Command) {
	ctx := context.Background()

	a := setup(ctx)
	defer a.Close()

	filter, err := listFilter(cmd, a.profile.Key)
	if err != nil {
		a.logger.Fatal("parsing flags", zap.Error(err))
	}

	page, err := a.store.Query(ctx, filter)
	if err != nil {
		a.logger.Fatal("querying the store", zap.Error(err))
	}

	printJSON(page)
}

func listFilter(cmd *cobra.Command, profile identity.ProfileKey) (dedup.Filter, error) {
	flags := cmd.Flags()

	query, _ := flags.GetString("query")
	location, _ := flags.GetString("location")
	sortBy, _ := flags.GetString("sort")
	page, _ := flags.GetInt("page")
	pageSize, _ := flags.GetInt("page-size")

	filter := dedup.Filter{
		QueryKey:         identity.QueryKey(query),
		LocationContains: location,
		SortBy:           dedup.SortBy(sortBy),
		Page:             page,
		PageSize:         pageSize,
	}

	if all, _ := flags.GetBool("all-profiles"); !all {
		filter.ProfileKey = profile
	}

	if minScore, _ := flags.GetInt("min-score"); minScore >= 0 {
		filter.MinScore = &minScore
	}

	if from, _ := flags.GetString("from"); from != "" {
		t, err := time.ParseInLocation(dateLayout, from, time.Local)
		if err != nil {
			return filter, err
		}
		filter.DateFrom = t
	}

	if to, _ := flags.GetString("to"); to != "" {
		t, err := time.ParseInLocation(dateLayout, to, time.Local)
		if err != nil {
			return filter, err
		}
		filter.DateTo = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	return filter, nil
}
