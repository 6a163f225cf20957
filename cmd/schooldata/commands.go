package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/usaschooldata/schooldata/internal/app"
	"github.com/usaschooldata/schooldata/internal/availability"
	"github.com/usaschooldata/schooldata/internal/blend"
	"github.com/usaschooldata/schooldata/internal/config"
	"github.com/usaschooldata/schooldata/pkg/types"
)

var (
	configFile     string
	sourceType     string
	sourceDir      string
	remoteAddr     string
	remoteInsecure bool
	logLevel       string
	humanLogs      bool

	year           string
	latestFallback bool

	grade         string
	raceEthnicity string
	sex           string

	stateCode   string
	schoolType  string
	schoolLevel string
	charter     string

	session *app.Session

	rootCmd = &cobra.Command{
		Use:           "schooldata",
		Short:         "Query public school enrollment data",
		Long:          `schooldata answers enrollment questions about US schools and districts, preferring the remote membership service and falling back to the published parquet partitions.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			session, err = app.New(cmd.Context(), cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if session == nil {
				return nil
			}
			return session.Close()
		},
	}

	summaryCmd = &cobra.Command{
		Use:   "summary [entity]",
		Short: "Show the enrollment summary of a school or district",
		Args:  cobra.ExactArgs(1),
		RunE:  runSummary,
	}
	gradesCmd = &cobra.Command{
		Use:   "grades [entity]",
		Short: "Show enrollment by grade",
		Args:  cobra.ExactArgs(1),
		RunE:  runGrades,
	}
	historyCmd = &cobra.Command{
		Use:   "history [entity]",
		Short: "Show enrollment for every available year",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	profileCmd = &cobra.Command{
		Use:   "profile [entity]",
		Short: "Show the summary and grade breakdown together",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfile,
	}
	rowsCmd = &cobra.Command{
		Use:   "rows [entity]",
		Short: "List raw membership rows from the local engine",
		Args:  cobra.ExactArgs(1),
		RunE:  runRows,
	}
	aggregateCmd = &cobra.Command{
		Use:       "aggregate [entity] [year|race_ethnicity|sex|grade]",
		Short:     "Group local membership counts by one dimension",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"year", "race_ethnicity", "sex", "grade"},
		RunE:      runAggregate,
	}
	searchCmd = &cobra.Command{
		Use:   "search [name]",
		Short: "Find schools by name in the directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearch,
	}
	yearsCmd = &cobra.Command{
		Use:   "years",
		Short: "List the school years known to the local engine",
		Args:  cobra.NoArgs,
		RunE:  runYears,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	pf.StringVar(&sourceType, "source", "", "Partition source: http, local, mirror")
	pf.StringVar(&sourceDir, "dir", "", "Dataset root for the local source")
	pf.StringVar(&remoteAddr, "remote", "", "Address of the membership gRPC service")
	pf.BoolVar(&remoteInsecure, "insecure", false, "Connect to the membership service without TLS")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&humanLogs, "human", false, "Human readable logs")

	for _, c := range []*cobra.Command{summaryCmd, gradesCmd, profileCmd, rowsCmd, aggregateCmd} {
		c.Flags().StringVar(&year, "year", "", "School year such as 2023-2024; empty means all years")
		c.Flags().BoolVar(&latestFallback, "latest-fallback", false, "Retry with the most recent year when the requested one is unavailable")
	}

	rowsCmd.Flags().StringVar(&grade, "grade", "", "Only rows of this grade")
	rowsCmd.Flags().StringVar(&raceEthnicity, "race", "", "Only rows of this race/ethnicity")
	rowsCmd.Flags().StringVar(&sex, "sex", "", "Only rows of this sex")

	searchCmd.Flags().StringVar(&stateCode, "state", "", "Two letter state code")
	searchCmd.Flags().StringVar(&schoolType, "type", "", "School type")
	searchCmd.Flags().StringVar(&schoolLevel, "level", "", "School level")
	searchCmd.Flags().StringVar(&charter, "charter", "", "Charter status: Yes or No")

	rootCmd.AddCommand(summaryCmd, gradesCmd, historyCmd, profileCmd, rowsCmd, aggregateCmd, searchCmd, yearsCmd)
}

// loadConfig layers the config file, the environment and the flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source.Type = config.SourceType(sourceType)
	}
	if flags.Changed("dir") {
		cfg.Source.Dir = sourceDir
		if !flags.Changed("source") {
			cfg.Source.Type = config.SourceLocal
		}
	}
	if flags.Changed("remote") {
		cfg.Remote.Address = remoteAddr
	}
	if flags.Changed("insecure") {
		cfg.Remote.Insecure = remoteInsecure
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("human") {
		cfg.Log.Human = humanLogs
	}
	// One-shot invocations gain nothing from waiting for more keystrokes.
	cfg.Search.Debounce = -1
	return cfg, nil
}

// output is the JSON envelope printed by every command.
type output struct {
	Data   any                  `json:"data"`
	Source types.DataSource     `json:"source,omitempty"`
	Notice *availability.Notice `json:"notice,omitempty"`
	Took   string               `json:"took"`
}

func printJSON(w io.Writer, out output) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// withYear runs fn for the --year flag, recovering to the latest year when
// --latest-fallback is set.
func withYear[T any](ctx context.Context, fn func(context.Context, types.SchoolYear) (T, error)) (T, *availability.Notice, error) {
	requested := types.SchoolYear(year)
	if !latestFallback {
		v, err := fn(ctx, requested)
		return v, nil, err
	}
	return availability.RecoverLatest(ctx, requested, session.Local().AvailableYears(), fn)
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx, start := session.Context(cmd.Context()), time.Now()
	code := types.EntityCode(args[0])
	res, notice, err := withYear(ctx, func(ctx context.Context, y types.SchoolYear) (blend.Result[*types.AggregateSummary], error) {
		return session.Resolver().Summary(ctx, code, y)
	})
	if err != nil {
		return err
	}
	return printResult(cmd, res, notice, start)
}

func runGrades(cmd *cobra.Command, args []string) error {
	ctx, start := session.Context(cmd.Context()), time.Now()
	code := types.EntityCode(args[0])
	res, notice, err := withYear(ctx, func(ctx context.Context, y types.SchoolYear) (blend.Result[[]types.GradeCount], error) {
		return session.Resolver().GradeBreakdown(ctx, code, y)
	})
	if err != nil {
		return err
	}
	return printResult(cmd, res, notice, start)
}

func runProfile(cmd *cobra.Command, args []string) error {
	ctx, start := session.Context(cmd.Context()), time.Now()
	code := types.EntityCode(args[0])
	res, notice, err := withYear(ctx, func(ctx context.Context, y types.SchoolYear) (blend.Result[blend.Profile], error) {
		return session.Resolver().Profile(ctx, code, y)
	})
	if err != nil {
		return err
	}
	return printResult(cmd, res, notice, start)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, start := session.Context(cmd.Context()), time.Now()
	res, err := session.Resolver().History(ctx, types.EntityCode(args[0]))
	if err != nil {
		return err
	}
	return printResult(cmd, res, nil, start)
}

func runRows(cmd *cobra.Command, args []string) error {
	ctx, start := session.Context(cmd.Context()), time.Now()
	code := types.EntityCode(args[0])
	filters := types.MembershipFilters{Grade: grade, RaceEthnicity: raceEthnicity, Sex: sex}
	rows, notice, err := withYear(ctx, func(ctx context.Context, y types.SchoolYear) ([]types.MembershipRow, error) {
		return session.Local().QueryEntity(ctx, code, y, filters)
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), output{Data: rows, Source: types.SourceLocal, Notice: notice, Took: since(start)})
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx, start := session.Context(cmd.Context()), time.Now()
	code, dim := types.EntityCode(args[0]), types.Dimension(args[1])
	rollup, notice, err := withYear(ctx, func(ctx context.Context, y types.SchoolYear) (types.Rollup, error) {
		return session.Local().Aggregate(ctx, code, y, dim)
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), output{Data: rollup, Source: types.SourceLocal, Notice: notice, Took: since(start)})
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, start := session.Context(cmd.Context()), time.Now()
	var query string
	if len(args) == 1 {
		query = args[0]
	}
	filters := types.SearchFilters{StateCode: stateCode, SchoolType: schoolType, SchoolLevel: schoolLevel, Charter: charter}
	entries, err := session.Searcher().Search(ctx, query, filters)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), output{Data: entries, Source: types.SourceLocal, Took: since(start)})
}

func runYears(cmd *cobra.Command, args []string) error {
	return printJSON(cmd.OutOrStdout(), output{Data: session.Local().AvailableYears(), Took: "0s"})
}

func printResult[T any](cmd *cobra.Command, res blend.Result[T], notice *availability.Notice, start time.Time) error {
	return printJSON(cmd.OutOrStdout(), output{Data: res.Value, Source: res.Source, Notice: notice, Took: since(start)})
}

func since(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
