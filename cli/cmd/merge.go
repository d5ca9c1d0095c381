package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/seam/adapter"
	"github.com/pithecene-io/seam/adapter/redis"
	"github.com/pithecene-io/seam/adapter/webhook"
	"github.com/pithecene-io/seam/cli/config"
	"github.com/pithecene-io/seam/cli/render"
	"github.com/pithecene-io/seam/digest"
	"github.com/pithecene-io/seam/feed"
	"github.com/pithecene-io/seam/iox"
	"github.com/pithecene-io/seam/log"
	"github.com/pithecene-io/seam/merger"
	"github.com/pithecene-io/seam/metrics"
	"github.com/pithecene-io/seam/types"
)

// publishTimeout bounds the completion notification.
const publishTimeout = 30 * time.Second

// MergeCommand returns the merge command.
func MergeCommand() *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Reassemble segments into one file or a segment directory, resuming when possible",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Output file (or directory with --dir)",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:  "total",
				Usage: "Number of segments (defaults to highest index + 1 with --from)",
			},
			&cli.BoolFlag{
				Name:  "dir",
				Usage: "Write one file per segment into --out instead of concatenating",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Directory of segment files named <index>[.<ext>]",
			},
			&cli.StringFlag{
				Name:  "frames",
				Usage: "Segment frame stream to read (- for stdin)",
			},
			&cli.StringFlag{
				Name:  "ext",
				Usage: "Extension of the segment files in --from (default: from the directory name)",
			},
			&cli.StringFlag{
				Name:  "out-ext",
				Usage: "Extension of segment files written with --dir (default: from --out)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent segment readers for --from",
				Value: feed.DefaultWorkers,
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Reject out-of-range and already merged segment indices",
			},
			&cli.BoolFlag{
				Name:  "no-sync",
				Usage: "Skip fsync after each write",
			},
			&cli.BoolFlag{
				Name:  "digest",
				Usage: "Compute a BLAKE3 digest of the output once complete",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to seam.yaml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "notify-type",
				Usage: "Completion notification: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "notify-url",
				Usage: "Webhook URL or redis:// URL",
			},
			&cli.StringFlag{
				Name:  "notify-channel",
				Usage: "Redis channel (default " + redis.DefaultChannel + ")",
			},
			&cli.StringSliceFlag{
				Name:  "notify-header",
				Usage: "Webhook header as 'Name: value' (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "notify-timeout",
				Usage: "Per-attempt notification timeout",
			},
			&cli.IntFlag{
				Name:  "notify-retries",
				Usage: "Notification retry attempts",
				Value: webhook.DefaultRetries,
			},
			FormatFlag,
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress the merge report",
			},
		},
		Action: mergeAction,
	}
}

// mergeChoice holds the resolved merge configuration.
type mergeChoice struct {
	out       string
	total     uint64
	mode      merger.Mode
	from      string
	frames    string
	ext       string
	outExt    string
	workers   int
	strict    bool
	noSync    bool
	digest    bool
	format    string
	logLevel  string
	quiet     bool
	notify    *notifyChoice
	totalSet  bool
	startedAt time.Time
}

// notifyChoice holds resolved notification settings.
type notifyChoice struct {
	adapterType string
	url         string
	channel     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

// MergeReport is the result of a merge command.
type MergeReport struct {
	Target       string `json:"target" yaml:"target"`
	Mode         string `json:"mode" yaml:"mode"`
	Total        uint64 `json:"total" yaml:"total"`
	Position     uint64 `json:"position" yaml:"position"`
	Complete     bool   `json:"complete" yaml:"complete"`
	Resumed      bool   `json:"resumed" yaml:"resumed"`
	ResumedFrom  uint64 `json:"resumed_from" yaml:"resumed_from"`
	Submitted    uint64 `json:"submitted" yaml:"submitted"`
	StoredBytes  uint64 `json:"stored_bytes" yaml:"stored_bytes"`
	FlushedBytes uint64 `json:"flushed_bytes" yaml:"flushed_bytes"`
	Pending      int    `json:"pending" yaml:"pending"`
	Missing      int    `json:"missing" yaml:"missing"`
	// Frame stream counters, --frames only.
	FramesRead    uint64            `json:"frames_read,omitempty" yaml:"frames_read,omitempty"`
	FramesDropped uint64            `json:"frames_dropped,omitempty" yaml:"frames_dropped,omitempty"`
	FramesSkipped uint64            `json:"frames_skipped,omitempty" yaml:"frames_skipped,omitempty"`
	Estimated     uint64            `json:"estimated_size" yaml:"estimated_size"`
	Digest        string            `json:"digest,omitempty" yaml:"digest,omitempty"`
	Notified      string            `json:"notified,omitempty" yaml:"notified,omitempty"`
	DurationMs    int64             `json:"duration_ms" yaml:"duration_ms"`
	Metrics       *metrics.Snapshot `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

func mergeAction(c *cli.Context) error {
	if c.NArg() > 0 {
		return cli.Exit(fmt.Sprintf("unexpected arguments: %s", strings.Join(c.Args().Slice(), " ")), exitUsage)
	}

	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		cfg = loaded
	}

	choice, err := resolveMergeChoice(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	r, err := render.NewRenderer(c, choice.format)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	logger := log.NewLogger(log.Target{Path: choice.out, Mode: string(choice.mode), Total: choice.total}).
		WithOutput(c.App.ErrWriter)
	if err := logger.SetLevel(choice.logLevel); err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runMerge(ctx, choice, c.App.Reader, logger)
	if report != nil && !choice.quiet {
		if rerr := r.Render(report); rerr != nil {
			logger.Warn("failed to render report", map[string]any{"error": rerr.Error()})
		}
	}
	if err != nil {
		return err
	}
	if !report.Complete {
		return cli.Exit(fmt.Sprintf("merge incomplete: %d of %d segments merged; rerun to resume",
			report.Position, report.Total), exitIncomplete)
	}
	return nil
}

// resolveMergeChoice applies flag > config > default precedence and
// validates the combination.
func resolveMergeChoice(c *cli.Context, cfg *config.Config) (*mergeChoice, error) {
	choice := &mergeChoice{
		out:       c.String("out"),
		total:     c.Uint64("total"),
		totalSet:  c.IsSet("total"),
		from:      c.String("from"),
		frames:    c.String("frames"),
		outExt:    c.String("out-ext"),
		ext:       resolveString(c, "ext", configVal(cfg, func(c *config.Config) string { return c.Extension })),
		workers:   resolveInt(c, "workers", configVal(cfg, func(c *config.Config) int { return c.Workers })),
		strict:    resolveBool(c, "strict", configVal(cfg, func(c *config.Config) bool { return c.Strict })),
		noSync:    resolveBool(c, "no-sync", configVal(cfg, func(c *config.Config) bool { return c.NoSync })),
		digest:    resolveBool(c, "digest", configVal(cfg, func(c *config.Config) bool { return c.Digest })),
		format:    configVal(cfg, func(c *config.Config) string { return c.Format }),
		logLevel:  resolveString(c, "log-level", configVal(cfg, func(c *config.Config) string { return c.Log.Level })),
		quiet:     c.Bool("quiet"),
		startedAt: time.Now(),
	}

	choice.mode = merger.ModeFile
	if resolveBool(c, "dir", configVal(cfg, func(c *config.Config) bool { return c.Mode == string(merger.ModeDirectory) })) {
		choice.mode = merger.ModeDirectory
	}

	if choice.out == "" {
		return nil, errors.New("--out is required")
	}
	switch {
	case choice.from == "" && choice.frames == "":
		return nil, errors.New("one of --from or --frames is required")
	case choice.from != "" && choice.frames != "":
		return nil, errors.New("--from and --frames are mutually exclusive")
	}
	if choice.frames != "" && !choice.totalSet {
		return nil, errors.New("--total is required with --frames")
	}
	if choice.totalSet && choice.total == 0 {
		return nil, errors.New("--total must be at least 1")
	}
	if choice.workers <= 0 {
		return nil, fmt.Errorf("--workers must be at least 1, got %d", choice.workers)
	}
	if choice.outExt != "" && choice.mode != merger.ModeDirectory {
		return nil, errors.New("--out-ext only applies with --dir")
	}

	notifyType := resolveString(c, "notify-type", configVal(cfg, func(c *config.Config) string { return c.Notify.Type }))
	if notifyType != "" {
		n, err := parseNotifyConfig(c, cfg, notifyType)
		if err != nil {
			return nil, err
		}
		choice.notify = n
	}
	return choice, nil
}

// parseNotifyConfig resolves notification settings with flag > config
// precedence.
func parseNotifyConfig(c *cli.Context, cfg *config.Config, notifyType string) (*notifyChoice, error) {
	n := &notifyChoice{
		adapterType: notifyType,
		url:         resolveString(c, "notify-url", configVal(cfg, func(c *config.Config) string { return c.Notify.URL })),
		channel:     resolveString(c, "notify-channel", configVal(cfg, func(c *config.Config) string { return c.Notify.Channel })),
		timeout:     resolveDuration(c, "notify-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Notify.Timeout.Duration })),
		retries:     c.Int("notify-retries"),
		headers:     map[string]string{},
	}

	if !c.IsSet("notify-retries") {
		if r := configVal(cfg, func(c *config.Config) *int { return c.Notify.Retries }); r != nil {
			n.retries = *r
		}
	}

	for k, v := range configVal(cfg, func(c *config.Config) map[string]string { return c.Notify.Headers }) {
		n.headers[k] = v
	}
	for _, h := range c.StringSlice("notify-header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --notify-header %q (want 'Name: value')", h)
		}
		n.headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	switch n.adapterType {
	case "webhook", "redis":
	default:
		return nil, fmt.Errorf("unknown --notify-type %q (must be webhook or redis)", n.adapterType)
	}
	if n.url == "" {
		return nil, fmt.Errorf("--notify-url is required for --notify-type %s", n.adapterType)
	}
	if n.retries < 0 {
		return nil, fmt.Errorf("--notify-retries must be >= 0, got %d", n.retries)
	}
	return n, nil
}

// buildAdapter constructs the configured completion adapter.
func buildAdapter(n *notifyChoice) (adapter.Adapter, error) {
	switch n.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     n.url,
			Headers: n.headers,
			Timeout: n.timeout,
			Retries: n.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     n.url,
			Channel: n.channel,
			Timeout: n.timeout,
			Retries: n.retries,
		})
	default:
		return nil, fmt.Errorf("unknown notify type: %s", n.adapterType)
	}
}

// runMerge builds the merger, feeds it and reports. A non-nil report is
// returned whenever the merger was constructed, even on error.
func runMerge(ctx context.Context, choice *mergeChoice, stdin io.Reader, logger *log.Logger) (*MergeReport, error) {
	var src *feed.DirSource
	var available []uint64
	if choice.from != "" {
		s := feed.NewDirSource(choice.from, choice.ext)
		indices, err := s.Scan()
		if err != nil {
			return nil, cli.Exit(err.Error(), exitIO)
		}
		if !choice.totalSet {
			if len(indices) == 0 {
				return nil, cli.Exit(fmt.Sprintf("no segment files found in %s; pass --total", choice.from), exitUsage)
			}
			choice.total = indices[len(indices)-1] + 1
		}
		src, available = &s, indices
	}

	collector := metrics.NewCollector(string(choice.mode), choice.out)
	opts := merger.Options{
		Logger:    logger,
		Metrics:   collector,
		Strict:    choice.strict,
		NoSync:    choice.noSync,
		Extension: choice.outExt,
	}

	var m *merger.Merger
	var err error
	if choice.mode == merger.ModeDirectory {
		m, err = merger.NewDirectory(choice.total, choice.out, opts)
	} else {
		m, err = merger.NewFile(choice.total, choice.out, opts)
	}
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("open %s: %v", choice.out, err), exitIO)
	}
	defer iox.DiscardClose(m)

	resumedFrom := m.Position()
	need := feed.Need(m)
	missing := 0

	var produce feed.Producer
	var frames *feed.FrameSource
	switch {
	case src != nil:
		var indices []uint64
		for _, idx := range available {
			if need(idx) {
				indices = append(indices, idx)
			}
		}
		missing = len(feed.Pending(m)) - len(indices)
		logger.Info("reading segment directory", map[string]any{
			"source":  src.Dir,
			"found":   len(available),
			"needed":  len(indices),
			"missing": missing,
			"workers": choice.workers,
		})
		produce = feed.DirProducer(*src, indices, choice.workers)
	default:
		r, closeFn, err := openFrames(choice.frames, stdin)
		if err != nil {
			return nil, cli.Exit(err.Error(), exitIO)
		}
		defer closeFn()
		frames = feed.NewFrameSource(r, logger)
		frames.Want = need
		produce = frames.Stream
	}

	submitted, feedErr := feed.Run(ctx, m, choice.workers, produce)
	if frames != nil {
		if end := frames.End(); end != nil && end.Total != 0 && end.Total != choice.total {
			logger.Warn("frame stream total differs from --total", map[string]any{
				"stream_total": end.Total,
			})
		}
	}

	report := &MergeReport{
		Target:       choice.out,
		Mode:         string(m.Mode()),
		Total:        m.Total(),
		Position:     m.Position(),
		Complete:     isComplete(m),
		Resumed:      m.Resumed(),
		ResumedFrom:  resumedFrom,
		Submitted:    submitted,
		StoredBytes:  m.StoredBytes(),
		FlushedBytes: m.FlushedBytes(),
		Pending:      m.Pending(),
		Missing:      missing,
		Estimated:    m.EstimateTotalSize(),
	}
	if frames != nil {
		report.Missing = missingAfter(m)
		report.FramesRead = frames.Read()
		report.FramesDropped = frames.Dropped()
		report.FramesSkipped = frames.Skipped()
	}

	if err := m.Close(); err != nil && feedErr == nil {
		feedErr = fmt.Errorf("close output: %w", err)
	}

	finish := func() {
		report.DurationMs = time.Since(choice.startedAt).Milliseconds()
		snap := collector.Snapshot()
		report.Metrics = &snap
	}

	if feedErr != nil {
		finish()
		return report, feedExit(feedErr)
	}

	if report.Complete && choice.digest {
		sum, err := outputDigest(m)
		if err != nil {
			finish()
			return report, cli.Exit(fmt.Sprintf("digest: %v", err), exitIO)
		}
		report.Digest = sum
	}

	finish()
	if report.Complete && choice.notify != nil {
		report.Notified = notify(ctx, choice, report, logger)
	}
	logger.Info("merge finished", map[string]any{
		"position":  report.Position,
		"complete":  report.Complete,
		"submitted": report.Submitted,
	})
	return report, nil
}

// isComplete reports whether every segment is merged. Directory mode
// also counts segment files left by earlier runs.
func isComplete(m *merger.Merger) bool {
	if m.IsBuffered() {
		return true
	}
	return m.Mode() == merger.ModeDirectory && len(feed.Pending(m)) == 0
}

// missingAfter counts the indices that never arrived: in file mode those
// at or past the cursor that are not buffered, in directory mode those
// without a segment file.
func missingAfter(m *merger.Merger) int {
	need := len(feed.Pending(m))
	if m.Mode() == merger.ModeFile {
		need -= m.Pending()
	}
	return max(need, 0)
}

// feedExit maps a feed error to an exit code.
func feedExit(err error) error {
	switch {
	case feed.IsCanceledError(err):
		return cli.Exit("merge interrupted; rerun to resume", exitIncomplete)
	case errors.Is(err, merger.ErrStaleSegment), errors.Is(err, merger.ErrIndexOutOfRange):
		return cli.Exit(err.Error(), exitUsage)
	default:
		return cli.Exit(err.Error(), exitIO)
	}
}

func openFrames(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open frame stream: %w", err)
	}
	return f, func() { iox.DiscardClose(f) }, nil
}

// outputDigest hashes the merged bytes in index order.
func outputDigest(m *merger.Merger) (string, error) {
	if m.Mode() == merger.ModeFile {
		return digest.File(m.Target())
	}
	paths := make([]string, 0, m.Total())
	for i := range m.Total() {
		p, _ := m.SegmentPath(i)
		paths = append(paths, p)
	}
	return digest.Files(paths)
}

// notify publishes the completion event. Failures are logged, not fatal:
// the merge itself succeeded.
func notify(ctx context.Context, choice *mergeChoice, report *MergeReport, logger *log.Logger) string {
	a, err := buildAdapter(choice.notify)
	if err != nil {
		logger.Warn("completion notification disabled", map[string]any{"error": err.Error()})
		return ""
	}
	defer iox.DiscardClose(a)

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	event := buildMergeCompletedEvent(report, time.Now())
	if err := a.Publish(pctx, event); err != nil {
		logger.Warn("completion notification failed", map[string]any{
			"adapter": choice.notify.adapterType,
			"error":   err.Error(),
		})
		return ""
	}
	logger.Info("completion notification sent", map[string]any{"adapter": choice.notify.adapterType})
	return choice.notify.adapterType
}

func buildMergeCompletedEvent(report *MergeReport, now time.Time) *adapter.MergeCompletedEvent {
	return &adapter.MergeCompletedEvent{
		ContractVersion: types.Version,
		EventType:       adapter.EventTypeMergeCompleted,
		Target:          report.Target,
		Mode:            report.Mode,
		Total:           report.Total,
		Position:        report.Position,
		StoredBytes:     report.StoredBytes,
		Digest:          report.Digest,
		Resumed:         report.Resumed,
		Timestamp:       now.UTC().Format(time.RFC3339),
		DurationMs:      report.DurationMs,
	}
}
