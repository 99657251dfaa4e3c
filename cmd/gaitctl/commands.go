package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/uploader"
	"github.com/okian/gaitlog/internal/viewer"
	"github.com/okian/gaitlog/pkg/logger"
)

const defaultURL = "http://localhost:9080"

type rootOptions struct {
	url      string
	timeout  time.Duration
	timezone string
	verbose  bool
}

func (o *rootOptions) client() *viewer.Client {
	return viewer.NewClient(o.url, viewer.WithTimeout(o.timeout))
}

func (o *rootOptions) location() (*time.Location, error) {
	if o.timezone == "" || o.timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(o.timezone)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	url := os.Getenv("GAITLOG_URL")
	if url == "" {
		url = defaultURL
	}

	root := &cobra.Command{
		Use:           "gaitctl",
		Short:         "Browse, upload and chart gait recordings",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}
	root.PersistentFlags().StringVar(&opts.url, "url", url, "gaitlog server URL (env GAITLOG_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	root.PersistentFlags().StringVar(&opts.timezone, "tz", "Local", "timezone for displayed start times")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newUploadCmd(opts),
		newSimulateCmd(opts),
	)
	return root
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := opts.location()
			if err != nil {
				return err
			}
			reg := viewer.NewRegistry(opts.client(), viewer.NewSelection())
			entries, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), viewer.EntriesTable(entries, loc))
			return nil
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "show <id>...",
		Short: "Overlay the average steps of sessions and print their features",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viewer.New(opts.client(), viewer.FileCanvas{Path: out}, logger.Get())
			err := v.Show(cmd.Context(), args...)
			if v.Selection().Len() == 0 {
				if err == nil {
					err = fmt.Errorf("no sessions to show")
				}
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, v.Summary())
			fmt.Fprintf(w, "chart written to %s\n", out)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "chart.png", "PNG file for the overlay chart")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			for _, id := range args {
				msg, err := c.Delete(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			return nil
		},
	}
}

type uploadOptions struct {
	session     string
	currentTime string
	offset      float64
	manifest    string
	chunk       int
	concurrency int
	retries     int
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var uo uploadOptions
	cmd := &cobra.Command{
		Use:   "upload [<csv>...]",
		Short: "Upload firmware CSV recordings",
		Long: `Upload "time,i,j,k,real" recordings in sequenced chunks.

Either name CSV files directly, or pass --manifest with the device's
pending-upload list ("file_name,current_time,time_offset" lines); manifest
file names are resolved next to the manifest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := uo.recordings(args)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return fmt.Errorf("nothing to upload: pass CSV files or --manifest")
			}
			u := uploader.New(opts.client(),
				uploader.WithChunkSize(uo.chunk),
				uploader.WithConcurrency(uo.concurrency),
				uploader.WithRetries(uo.retries, time.Second),
				uploader.WithLogger(logger.Get()),
			)
			results, err := u.UploadAll(cmd.Context(), recs)
			printResults(cmd, results)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&uo.session, "session", "", "session id (single file; default: file name without .csv)")
	f.StringVar(&uo.currentTime, "current-time", "", "device wall clock at upload (default: now)")
	f.Float64Var(&uo.offset, "offset", 0, "seconds between recording start and --current-time")
	f.StringVar(&uo.manifest, "manifest", "", "device pending-upload list")
	f.IntVar(&uo.chunk, "chunk", uploader.DefaultChunkSize, "rows per batch")
	f.IntVar(&uo.concurrency, "concurrency", uploader.DefaultConcurrency, "recordings uploaded at once")
	f.IntVar(&uo.retries, "retries", 2, "retries per failed batch")
	return cmd
}

func (uo uploadOptions) recordings(paths []string) ([]uploader.Recording, error) {
	if uo.session != "" && len(paths) != 1 {
		return nil, fmt.Errorf("--session needs exactly one CSV file")
	}
	now := uo.currentTime
	if now == "" {
		now = time.Now().Format(uploader.WallClockLayout)
	}

	var recs []uploader.Recording
	for _, p := range paths {
		samples, err := readCSV(p)
		if err != nil {
			return nil, err
		}
		id := uo.session
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(p), ".csv")
		}
		recs = append(recs, uploader.Recording{SessionID: id, CurrentTime: now, TimeOffset: uo.offset, Samples: samples})
	}

	if uo.manifest != "" {
		f, err := os.Open(uo.manifest)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		entries, err := uploader.ReadManifest(f)
		if err != nil {
			return nil, err
		}
		dir := filepath.Dir(uo.manifest)
		for _, e := range entries {
			samples, err := readCSV(filepath.Join(dir, e.FileName))
			if err != nil {
				return nil, err
			}
			recs = append(recs, uploader.Recording{
				SessionID:   e.SessionID(),
				CurrentTime: e.CurrentTime,
				TimeOffset:  e.TimeOffset,
				Samples:     samples,
			})
		}
	}
	return recs, nil
}

func readCSV(path string) ([]model.RawSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := uploader.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var (
		foot    string
		seconds float64
		id      string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Upload a synthetic walking recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if foot != "left" && foot != "right" {
				return fmt.Errorf("--foot must be left or right, got %q", foot)
			}
			if seconds <= 0 {
				return fmt.Errorf("--seconds must be positive")
			}
			if id == "" {
				id = foot + "-sim-" + uuid.NewString()[:8]
			}
			rec := uploader.Recording{
				SessionID:   id,
				CurrentTime: time.Now().Format(uploader.WallClockLayout),
				TimeOffset:  seconds,
				Samples:     uploader.DefaultGenerator().Samples(seconds),
			}
			res, err := uploader.New(opts.client(), uploader.WithLogger(logger.Get())).Upload(cmd.Context(), rec)
			printResults(cmd, []uploader.Result{res})
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&foot, "foot", "left", "left or right")
	f.Float64Var(&seconds, "seconds", 30, "recording length")
	f.StringVar(&id, "id", "", "session id (default: <foot>-sim-<random>)")
	return cmd
}

func printResults(cmd *cobra.Command, results []uploader.Result) {
	w := cmd.OutOrStdout()
	for _, r := range results {
		if r.SessionID == "" {
			continue
		}
		fmt.Fprintf(w, "%s: %d batches, %d samples. %s\n", r.SessionID, r.Batches, r.Samples, r.Last)
	}
}
