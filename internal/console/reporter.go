package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/pkg/dimse"
)

const (
	ruleWidth    = 100
	barTemplate  = `{{string . "label"}} {{counters . }} {{bar . }} {{percent . }} {{etime . }}`
	maxDescWidth = 60
)

// Reporter prints cycle headers, per-job progress and cycle statistics for an operator
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	barOut io.Writer
	bar    *pb.ProgressBar
}

// Option configures a Reporter
type Option func(*Reporter)

// WithProgressBar renders a transfer progress bar on w (usually stderr)
func WithProgressBar(w io.Writer) Option {
	return func(r *Reporter) { r.barOut = w }
}

// New creates a reporter writing to out
func New(out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{out: out}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BannerInfo is the startup configuration shown once
type BannerInfo struct {
	Local       models.NodeConfig
	Remote      models.NodeConfig
	RemoteKey   string
	Destination models.Destination
	Policy      string
	WindowHours int
	Interval    time.Duration
	DownloadDay string
}

// Banner prints the resolved configuration
func (r *Reporter) Banner(info BannerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("\nConfiguration loaded:\n")
	r.printf("  Local:       %s\n", info.Local)
	r.printf("  Remote:      %s (selected: '%s')\n", info.Remote, info.RemoteKey)
	r.printf("  Destination: %s\n", info.Destination)
	r.printf("  Policy:      %s\n", info.Policy)

	r.printf("\n%s\n", strings.Repeat("=", 80))
	if info.DownloadDay != "" {
		r.printf("Starting one-time download of %s\n", info.DownloadDay)
	} else {
		r.printf("Starting automatic synchronization\n")
		r.printf("Window: last %d hours, sync runs every %s when nothing was transferred\n", info.WindowHours, info.Interval)
		r.printf("Press Ctrl+C to stop\n")
	}
	r.printf("%s\n", strings.Repeat("=", 80))
}

// Shutdown prints the closing message
func (r *Reporter) Shutdown(totals models.Totals, interrupted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishBar()
	r.printf("\n%s\n", strings.Repeat("=", 80))
	if interrupted {
		r.printf("Synchronization stopped by user\n")
	} else {
		r.printf("Download completed\n")
	}
	r.printf("Total cycles completed: %d\n", totals.Cycles)
	r.printf("Total transferred: %d series (%d images), %d failed\n",
		totals.SeriesTransferred, totals.ImagesTransferred, totals.SeriesFailed)
	r.printf("%s\n", strings.Repeat("=", 80))
}

// CycleStarted prints the cycle header
func (r *Reporter) CycleStarted(plan models.CyclePlan) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule := strings.Repeat("#", ruleWidth)
	r.printf("\n\n%s\n%s\n", rule, rule)
	r.printf("CYCLE %d\n", plan.Cycle)
	r.printf("%s\n%s\n", rule, rule)

	if plan.DownloadDay {
		r.printf("Querying all studies of %s\n", formatDate(plan.DateFrom))
		return
	}
	r.printf("Querying studies from %s to %s (last %d hours)\n",
		formatDate(plan.DateFrom), formatDate(plan.DateTo), plan.WindowHours)
}

// OnProgress prints one transfer job event and advances the progress bar
func (r *Reporter) OnProgress(event models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := event.Timestamp.Format(time.TimeOnly)

	switch event.Kind {
	case models.ProgressStarted:
		if event.Index == 1 {
			r.printf("\nStarting transfer: %d series\n%s\n\n", event.Total, strings.Repeat("=", ruleWidth))
			r.startBar(event.Total)
		}
		r.printf("[%s] [%d/%d] C-MOVE START\n", ts, event.Index, event.Total)
		r.printf("  Patient: %s\n", event.PatientName)
		r.printf("  Date: %s\n", formatDate(event.StudyDate))
		r.printf("  Series: %s - %s\n", event.Series, event.Label)
		r.printf("  Description: %s\n", truncate(event.Description, maxDescWidth))

	case models.ProgressFinished:
		if event.Succeeded {
			r.printf("[%s] C-MOVE COMPLETE ✓\n", ts)
			r.printf("  Speed: %.1f img/s (this series) | Average: %.1f img/s | Time: %.1fs\n\n",
				event.SeriesRate, event.AverageRate, event.Elapsed.Seconds())
		} else {
			r.printf("[%s] C-MOVE FAILED ✗\n", ts)
			if event.Err != nil {
				r.printf("  Error: %v\n", event.Err)
			}
			r.printf("\n")
		}

		if r.bar != nil {
			r.bar.Increment()
			if event.Index == event.Total {
				r.finishBar()
			}
		}
	}
}

// ReportCycle prints the statistics block of a finished cycle
func (r *Reporter) ReportCycle(_ context.Context, stats *models.SyncCycleStats, totals models.Totals) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishBar()

	if stats.Failed() {
		r.printf("\nCycle %d failed: %s\n", stats.Cycle, stats.Error)
		r.printf("The next cycle will retry.\n")
		r.printTotals(totals)
		return nil
	}

	r.printf("\nRemote studies: %d (%d in window), local studies: %d, missing studies: %d\n",
		stats.RemoteStudies, stats.RemoteStudiesInWindow, stats.LocalStudies, stats.MissingStudies)

	switch {
	case stats.SeriesSelected == 0 && stats.SeriesConsidered == 0:
		r.printf("No series to transfer\n")
	case stats.SeriesSelected == 0:
		r.printf("No series to transfer, all %d series are complete\n", stats.SeriesConsidered)
	default:
		r.printf("%s\n", strings.Repeat("=", ruleWidth))
		r.printf("Transfer statistics:\n")
		r.printf("  Successfully transferred: %s series (%d images)\n", stats.SuccessRatio(), stats.ImagesTransferred)
		if stats.SeriesFailed > 0 {
			r.printf("  Failed: %d series\n", stats.SeriesFailed)
		}
		if stats.SeriesSkipped > 0 {
			r.printf("  Skipped: %d series (cancelled)\n", stats.SeriesSkipped)
		}
		secs := stats.TransferTime.Seconds()
		r.printf("  Total time: %.1f seconds (%.1f minutes)\n", secs, secs/60)
		r.printf("  Average transfer rate: %.1f images/minute\n", stats.ImagesPerMinute())
	}

	r.printf("\nSync cycle completed at %s\n", stats.FinishedAt.Format(time.DateTime))
	r.printTotals(totals)
	return nil
}

func (r *Reporter) printTotals(totals models.Totals) {
	r.printf("Totals: %d cycles (%d failed), %d series transferred, %d images\n",
		totals.Cycles, totals.FailedCycles, totals.SeriesTransferred, totals.ImagesTransferred)
}

func (r *Reporter) startBar(total int) {
	if r.barOut == nil {
		return
	}
	r.finishBar()
	r.bar = pb.New(total)
	r.bar.SetWriter(r.barOut)
	r.bar.SetTemplateString(barTemplate)
	r.bar.Set("label", "series")
	r.bar.Start()
}

func (r *Reporter) finishBar() {
	if r.bar == nil {
		return
	}
	r.bar.Finish()
	r.bar = nil
}

func (r *Reporter) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// formatDate renders a DA value as YYYY-MM-DD, leaving unparsable values unchanged
func formatDate(da string) string {
	t, err := dimse.ParseDate(da, time.UTC)
	if err != nil {
		return da
	}
	return t.Format(time.DateOnly)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
