package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"cabinet/internal/fslock"
	"cabinet/internal/logger"
	"cabinet/internal/merge"
	"cabinet/internal/model"
	"cabinet/internal/policy"
	"cabinet/internal/repository"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	mergePolicy string
	mergeExts   []string
)

var mergeCmd = &cobra.Command{
	Use:   "merge [source] [destination]",
	Short: "Merge a source tree into a destination tree and remove the source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := replacePolicy(mergePolicy, mergeExts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		src, dst := args[0], args[1]
		lock, err := fslock.Acquire(cfg.LockDir, src, dst)
		if err != nil {
			return err
		}
		defer lock.Release()

		report, err := merge.New(cfg.MergeOptions(logger.Log)).Merge(ctx, src, dst, p)
		saveRun(model.RunMerge, src, dst, p.String(), report.Mutations(), len(report.Failures), err)

		printMergeReport(report)
		return err
	},
}

// replacePolicy builds a policy from a preset name and ext=ACTION overrides.
func replacePolicy(name string, exts []string) (policy.ReplacePolicy, error) {
	p, err := policy.ReplacePreset(name)
	if err != nil {
		return p, err
	}

	for _, kv := range exts {
		ext, action, ok := strings.Cut(kv, "=")
		if !ok || ext == "" {
			return p, fmt.Errorf("invalid --ext %q, want ext=ACTION", kv)
		}

		a, err := policy.ParseReplaceAction(action)
		if err != nil {
			return p, err
		}
		p = p.With(ext, a)
	}

	return p, p.Validate()
}

func printMergeReport(r *merge.Report) {
	rows := [][]string{
		{"moved", strconv.Itoa(r.Moved)},
		{"replaced", strconv.Itoa(r.Replaced)},
		{"renamed", strconv.Itoa(r.Renamed)},
		{"consumed", strconv.Itoa(r.Consumed)},
		{"skipped", strconv.Itoa(r.Skipped)},
		{"dirs moved", strconv.Itoa(r.DirsMoved)},
		{"failures", strconv.Itoa(len(r.Failures) + len(r.CleanupErrors))},
	}
	fmt.Println(renderTable(os.Stdout, []string{"RESULT", "COUNT"}, rows, []columnAlignment{alignLeft, alignRight}))
	printFailures(append(r.Failures, r.CleanupErrors...))
}

func printFailures(failures []*model.Failure) {
	for _, f := range failures {
		fmt.Fprintln(os.Stderr, colored(os.Stderr, text.FgRed, "✗ "+f.Error()))
	}
}

// saveRun records a finished run; a history failure never fails the command.
func saveRun(kind model.RunKind, src, dst, policyName string, mutations, failures int, runErr error) {
	if _, err := repository.NewHistoryRepository().Save(model.RunResult{
		Kind:      kind,
		SrcPath:   src,
		DstPath:   dst,
		Policy:    policyName,
		Mutations: mutations,
		Failures:  failures,
		Err:       runErr,
	}); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}

func init() {
	mergeCmd.Flags().StringVar(&mergePolicy, "policy", "replace", "Replace policy preset (replace, update-pack, skip, rename, check)")
	mergeCmd.Flags().StringArrayVar(&mergeExts, "ext", nil, "Per-extension override as ext=ACTION, repeatable")
	rootCmd.AddCommand(mergeCmd)
}
