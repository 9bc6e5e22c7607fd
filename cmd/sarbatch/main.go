package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sarbatch/internal/catalog"
	"sarbatch/internal/config"
	"sarbatch/internal/db"
	"sarbatch/internal/domain"
	"sarbatch/internal/download"
	"sarbatch/internal/events"
	"sarbatch/internal/hyp3"
	"sarbatch/internal/pairs"
	"sarbatch/internal/repo"
	"sarbatch/internal/scheduler"
)

var rootCmd = &cobra.Command{
	Use:   "sarbatch",
	Short: "Sentinel-1 InSAR batch processing CLI",
	Long: `sarbatch orchestrates batches of InSAR pair-processing jobs against HyP3.
It builds a temporal-baseline pair graph from a catalog stack, checks the
credit balance before submitting anything, submits pairs in bounded chunks,
watches jobs to completion, and downloads artifacts with a worker pool.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := db.EnsureWorkspace(viper.GetString("workspace")); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SARBATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(creditsCmd())
	rootCmd.AddCommand(logCmd())
}

// processFlags carries the per-run overrides of sarbatch.yml defaults.
type processFlags struct {
	start, end          string
	projectName         string
	outputDir           string
	minTemporalBaseline int
	maxTemporalBaseline int
	batchSize           int
	maxWorkers          int
	looks               string
	dryRun              bool
	noDownload          bool
	waterMask           bool
	wrappedPhase        bool
	displacementMaps    bool
}

func processCmd() *cobra.Command {
	proc := &cobra.Command{Use: "process", Short: "Submit InSAR processing batches"}
	proc.AddCommand(processJobCmd("insar", hyp3.JobTypeInSAR, "Process full-scene InSAR pairs"))
	proc.AddCommand(processJobCmd("insar-burst", hyp3.JobTypeInSARBurst, "Process burst InSAR pairs"))
	return proc
}

func processJobCmd(use, jobType, short string) *cobra.Command {
	var f processFlags
	cmd := &cobra.Command{
		Use:   use + " <reference-scene>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			applyDefaults(cmd, &f, cfg)
			return runProcess(cmd.Context(), cfg, jobType, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.start, "start", "", "earliest acquisition date (RFC3339)")
	cmd.Flags().StringVar(&f.end, "end", "", "latest acquisition date (RFC3339)")
	cmd.Flags().StringVar(&f.projectName, "project-name", "", "project name (generated if omitted)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "data", "artifact destination directory")
	cmd.Flags().IntVar(&f.minTemporalBaseline, "min-temporal-baseline", 0, "minimum temporal baseline in days")
	cmd.Flags().IntVar(&f.maxTemporalBaseline, "max-temporal-baseline", 24, "maximum temporal baseline in days")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", scheduler.DefaultBatchSize, "pairs per submission chunk")
	cmd.Flags().IntVar(&f.maxWorkers, "max-workers", download.DefaultWorkers, "concurrent download workers")
	cmd.Flags().StringVar(&f.looks, "looks", "", "looks mode (e.g. 20x4, 10x2)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print pairs without submitting")
	cmd.Flags().BoolVar(&f.noDownload, "no-download", false, "do not watch or download; retrieve later")
	cmd.Flags().BoolVar(&f.waterMask, "water-mask", false, "apply water mask")
	cmd.Flags().BoolVar(&f.wrappedPhase, "wrapped-phase", false, "include wrapped phase product")
	cmd.Flags().BoolVar(&f.displacementMaps, "displacement-maps", false, "include displacement map products")
	return cmd
}

// applyDefaults fills flags the user did not set from sarbatch.yml.
func applyDefaults(cmd *cobra.Command, f *processFlags, cfg *config.Config) {
	if !cmd.Flags().Changed("min-temporal-baseline") {
		f.minTemporalBaseline = cfg.Processing.MinTemporalBaseline
	}
	if !cmd.Flags().Changed("max-temporal-baseline") {
		f.maxTemporalBaseline = cfg.Processing.MaxTemporalBaseline
	}
	if !cmd.Flags().Changed("batch-size") {
		f.batchSize = cfg.Processing.BatchSize
	}
	if !cmd.Flags().Changed("max-workers") {
		f.maxWorkers = cfg.Processing.MaxWorkers
	}
	if f.looks == "" {
		f.looks = cfg.Processing.Looks
	}
}

func runProcess(ctx context.Context, cfg *config.Config, jobType, referenceID string, f processFlags) error {
	start, err := parseDate(f.start)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	end, err := parseDate(f.end)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}

	cat := catalog.New(cfg.Service.CatalogURL)
	stack, err := cat.StackFromReference(ctx, referenceID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			slog.Error("reference scene not found in catalog", "reference", referenceID)
			return nil
		}
		return err
	}
	stack = filterStackByDate(stack, start, end)

	prs, err := pairs.Build(stack, f.minTemporalBaseline, f.maxTemporalBaseline)
	if err != nil {
		return err
	}
	slog.Info("built pair graph", "acquisitions", len(stack), "pairs", len(prs))
	if len(prs) == 0 {
		slog.Error("no pairs generated for the given baseline window")
		return nil
	}
	if f.dryRun {
		slog.Info("dry run, not submitting jobs")
		for _, p := range prs {
			fmt.Printf("%s,%s\n", p.Reference, p.Secondary)
		}
		return nil
	}

	username, password, err := config.Credentials()
	if err != nil {
		slog.Error("missing credentials", "error", err)
		return nil
	}
	client := hyp3.New(cfg.Service.APIURL, username, password)
	if interval, err := cfg.PollInterval(); err == nil {
		client.PollInterval = interval
	}

	costPerPair, err := cfg.CostPerPair(jobType, f.looks)
	if err != nil {
		return err
	}
	credits, err := client.CheckCredits(ctx)
	if err != nil {
		return fmt.Errorf("check credits: %w", err)
	}
	if err := pairs.Admit(len(prs), costPerPair, credits); err != nil {
		slog.Error("submission rejected", "pairs", len(prs), "cost_per_pair", costPerPair,
			"credits", credits, "error", err)
		return nil
	}

	projectName := f.projectName
	if projectName == "" {
		projectName = "sarbatch-" + uuid.NewString()[:8]
		slog.Info("generated project name", "project", projectName)
	}
	opts := hyp3.SubmitOptions{
		ProjectName:             projectName,
		Looks:                   f.looks,
		IncludeWrappedPhase:     f.wrappedPhase,
		IncludeDisplacementMaps: f.displacementMaps,
		ApplyWaterMask:          f.waterMask,
		// Both are needed downstream by MintPy.
		IncludeDEM:         true,
		IncludeLookVectors: true,
	}
	submit := client.SubmitInSAR
	if jobType == hyp3.JobTypeInSARBurst {
		submit = client.SubmitInSARBurst
	}

	conn, err := db.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	ledger := repo.Ledger{Repo: repo.Repo{DB: conn}, Events: events.Writer{DB: conn}, Project: projectName}

	sched := scheduler.Scheduler{
		Submit: func(ctx context.Context, pair domain.Pair) (domain.Job, error) {
			return submit(ctx, pair, opts)
		},
		Watcher: scheduler.Watcher{Watch: client.Watch},
		Downloader: download.Manager{
			Fetch:   client.Download,
			Workers: f.maxWorkers,
			Sink:    download.NewProgressSink(os.Stderr),
		},
		Ledger:    ledger,
		BatchSize: f.batchSize,
	}
	mode := scheduler.Blocking
	if f.noDownload {
		mode = scheduler.FireAndForget
	}
	slog.Info("submitting pairs", "pairs", len(prs), "project", projectName,
		"batch_size", f.batchSize, "job_type", jobType)
	results := sched.Run(ctx, prs, scheduler.Options{
		Mode:     mode,
		Download: !f.noDownload,
		DestDir:  f.outputDir,
	})
	summarize(results, projectName)
	return nil
}

func downloadCmd() *cobra.Command {
	var projectName, outputDir string
	var maxWorkers, startIndex, endIndex int
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download artifacts for a project's jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-workers") {
				maxWorkers = cfg.Processing.MaxWorkers
			}
			username, password, err := config.Credentials()
			if err != nil {
				slog.Error("missing credentials", "error", err)
				return nil
			}
			ctx := cmd.Context()
			client := hyp3.New(cfg.Service.APIURL, username, password)
			jobs, err := client.FindJobs(ctx, projectName)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				slog.Error("no jobs found for project", "project", projectName)
				return nil
			}
			sort.Slice(jobs, func(i, j int) bool { return firstFilename(jobs[i]) < firstFilename(jobs[j]) })
			jobs = sliceJobs(jobs, startIndex, endIndex)

			conn, err := db.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			ledger := repo.Ledger{Repo: repo.Repo{DB: conn}, Events: events.Writer{DB: conn}, Project: projectName}

			mgr := download.Manager{
				Fetch:   client.Download,
				Workers: maxWorkers,
				Sink:    download.NewProgressSink(os.Stderr),
			}
			res := mgr.DownloadAll(ctx, jobs, outputDir)
			if err := ledger.JobsDownloaded(ctx, jobs, res); err != nil {
				slog.Warn("ledger update failed", "error", err)
			}
			printDownloadResult(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectName, "project-name", "", "project name")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "artifact destination directory")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", download.DefaultWorkers, "concurrent download workers")
	cmd.Flags().IntVar(&startIndex, "start-index", 0, "first job index to download")
	cmd.Flags().IntVar(&endIndex, "end-index", -1, "job index to stop before (-1 for all)")
	_ = cmd.MarkFlagRequired("project-name")
	return cmd
}

func jobsCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "jobs [job-id]",
		Short: "Inspect the local job ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			r := repo.Repo{DB: conn}

			if len(args) == 1 {
				job, _, err := r.GetJob(cmd.Context(), args[0])
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						slog.Error("job not in ledger", "job_id", args[0])
						return nil
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(job)
				}
				return printJobs(os.Stdout, []domain.Job{job}, nil)
			}

			if project == "" {
				return fmt.Errorf("--project-name is required when no job id is given")
			}
			jobs, err := r.ListJobs(cmd.Context(), project)
			if err != nil {
				return err
			}
			counts, err := r.CountJobsByStatus(cmd.Context(), project)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(jobs)
			}
			return printJobs(os.Stdout, jobs, counts)
		},
	}
	cmd.Flags().StringVar(&project, "project-name", "", "project name")
	return cmd
}

func searchCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "search <reference-scene>",
		Short: "List the baseline stack for a reference scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			startT, err := parseDate(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			endT, err := parseDate(end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			cat := catalog.New(cfg.Service.CatalogURL)
			stack, err := cat.StackFromReference(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					slog.Error("reference scene not found in catalog", "reference", args[0])
					return nil
				}
				return err
			}
			stack = filterStackByDate(stack, startT, endT)
			if viper.GetBool("json") {
				return printJSON(stack)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Scene", "Start Time", "Baseline (days)", "Frame", "Path"})
			for _, a := range stack {
				tw.AppendRow(table.Row{a.SceneID, a.StartTime.Format(time.RFC3339), a.TemporalBaseline, a.FrameNumber, a.PathNumber})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "earliest acquisition date (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "latest acquisition date (RFC3339)")
	return cmd
}

func creditsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "Show the remaining credit balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			username, password, err := config.Credentials()
			if err != nil {
				slog.Error("missing credentials", "error", err)
				return nil
			}
			client := hyp3.New(cfg.Service.APIURL, username, password)
			credits, err := client.CheckCredits(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]int{"remaining_credits": credits})
			}
			fmt.Printf("Remaining credits: %d\n", credits)
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Run event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var project string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent run events",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			evts, err := repo.Repo{DB: conn}.LatestEvents(cmd.Context(), n, project)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(evts)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Time", "Type", "Project", "Entity", "Payload"})
			for _, e := range evts {
				tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.Project, e.EntityID, e.Payload})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&project, "project-name", "", "project name filter")
	return cmd
}

// --- helpers ---

func summarize(results []scheduler.ChunkResult, projectName string) {
	var submitted, submitFailed, succeeded, failed, downloaded, downloadFailed int
	for _, r := range results {
		submitted += len(r.Jobs)
		submitFailed += len(r.SubmitErrors)
		for _, j := range r.Jobs {
			switch j.Status {
			case domain.JobSucceeded:
				succeeded++
			case domain.JobFailed:
				failed++
			}
		}
		downloaded += r.Download.Succeeded
		downloadFailed += len(r.Download.Failed)
	}
	slog.Info("run complete", "project", projectName, "chunks", len(results),
		"submitted", submitted, "submit_failed", submitFailed,
		"succeeded", succeeded, "failed", failed,
		"downloaded", downloaded, "download_failed", downloadFailed)
}

func printDownloadResult(res download.Result) {
	if viper.GetBool("json") {
		type failedJob struct {
			JobID string `json:"job_id"`
			Error string `json:"error"`
		}
		out := struct {
			Succeeded int         `json:"succeeded"`
			Failed    []failedJob `json:"failed"`
		}{Succeeded: res.Succeeded}
		for _, f := range res.Failed {
			out.Failed = append(out.Failed, failedJob{JobID: f.Job.ID, Error: f.Err.Error()})
		}
		_ = printJSON(out)
		return
	}
	if len(res.Failed) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Job", "Error"})
		for _, f := range res.Failed {
			tw.AppendRow(table.Row{f.Job.ID, f.Err.Error()})
		}
		tw.Render()
	}
	fmt.Printf("Download complete: %d successful, %d failed\n", res.Succeeded, len(res.Failed))
}

func printJobs(out io.Writer, jobs []domain.Job, counts map[domain.JobStatus]int) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Job", "Type", "Status", "Reference", "Secondary", "Files"})
	for _, j := range jobs {
		tw.AppendRow(table.Row{j.ID, j.Type, j.Status, j.Reference, j.Secondary, len(j.Files)})
	}
	if len(counts) > 0 {
		tw.AppendFooter(table.Row{statusSummary(counts)})
	}
	tw.Render()
	return nil
}

func statusSummary(counts map[domain.JobStatus]int) string {
	order := []domain.JobStatus{domain.JobPending, domain.JobRunning, domain.JobSucceeded, domain.JobFailed}
	var parts []string
	for _, s := range order {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", s, n))
		}
	}
	return strings.Join(parts, ", ")
}

func filterStackByDate(stack []domain.Acquisition, start, end *time.Time) []domain.Acquisition {
	if start == nil && end == nil {
		return stack
	}
	out := stack[:0]
	for _, a := range stack {
		if start != nil && a.StartTime.Before(*start) {
			continue
		}
		if end != nil && a.StartTime.After(*end) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func firstFilename(j domain.Job) string {
	if len(j.Files) == 0 {
		return ""
	}
	return j.Files[0].Filename
}

func sliceJobs(jobs []domain.Job, start, end int) []domain.Job {
	if start < 0 {
		start = 0
	}
	if end < 0 || end > len(jobs) {
		end = len(jobs)
	}
	if start >= end {
		return nil
	}
	return jobs[start:end]
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Accept plain dates too.
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
