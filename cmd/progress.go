package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/desertthunder/ymd/internal/formatter"
	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/tasks"
)

// progressBuffer sizes the update channel. Sends never block, so a slow
// terminal drops updates rather than stalling downloads.
const progressBuffer = 64

// progressView renders [tasks.ProgressUpdate] events. On a terminal downloads
// drive an mpb bar; otherwise every update is printed as a line.
type progressView struct {
	w      io.Writer
	bars   bool
	p      *mpb.Progress
	bar    *mpb.Bar
	failed atomic.Int32
}

func newProgressView(w io.Writer, bars bool) *progressView {
	return &progressView{w: w, bars: bars}
}

// watch consumes updates until the channel closes, then finishes any bar.
// The returned channel is closed once rendering is done.
func (v *progressView) watch(updates <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range updates {
			v.handle(u)
		}
		v.finish()
	}()
	return done
}

func (v *progressView) handle(u tasks.ProgressUpdate) {
	switch u.Phase {
	case tasks.FilterItems:
		pending, _ := u.Data.([]models.CatalogItem)
		if len(pending) == 0 {
			fmt.Fprintf(v.w, "%s\n", u.Message)
			return
		}
		fmt.Fprintf(v.w, "\nTracks to download (%s)\n%s\n\n", u.Message, formatter.ItemsTable(pending))
		if v.bars {
			v.start(len(pending))
		}
	case tasks.Download:
		if u.Err != nil {
			v.failed.Add(1)
		}
		if v.bar == nil {
			fmt.Fprintln(v.w, u.Message)
			return
		}
		v.bar.Increment()
	default:
		if v.bar == nil {
			fmt.Fprintln(v.w, u.Message)
		}
	}
}

func (v *progressView) start(total int) {
	v.p = mpb.New(
		mpb.WithOutput(v.w),
		mpb.WithRefreshRate(150*time.Millisecond),
		mpb.WithWidth(60),
	)
	v.bar = v.p.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name("Downloading", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d/%d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Any(func(decor.Statistics) string {
				if n := v.failed.Load(); n > 0 {
					return fmt.Sprintf(" %d failed", n)
				}
				return ""
			}),
		),
	)
}

// finish completes the bar. Dropped updates can leave it short of its total,
// so an incomplete bar is aborted in place instead of waited on forever.
func (v *progressView) finish() {
	if v.p == nil {
		return
	}
	if !v.bar.Completed() {
		v.bar.Abort(false)
	}
	v.p.Wait()
}
