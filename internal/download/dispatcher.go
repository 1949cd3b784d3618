package download

import (
	"context"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

// DefaultWorkers is the worker count used when none is configured.
const DefaultWorkers = 3

// ItemDownloader is the single-item step run by each worker.
type ItemDownloader interface {
	Download(ctx context.Context, id, dir string) (string, error)
}

// Result is the outcome of one dispatched item. Exactly one of Path and Err is set.
type Result struct {
	Item  models.CatalogItem
	Index int // position in the dispatched slice
	Path  string
	Err   error
}

// OK reports whether the item was fetched.
func (r Result) OK() bool { return r.Err == nil }

// InOrder returns results sorted back into dispatch order.
func InOrder(results []Result) []Result {
	sorted := append([]Result(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return sorted
}

// DispatcherOpts configures a [Dispatcher].
type DispatcherOpts struct {
	Workers   int     // concurrent fetches (default: 3, minimum 1)
	RateLimit float64 // fetch starts per second, 0 disables throttling
}

// Dispatcher runs many downloads through a fixed pool of workers.
type Dispatcher struct {
	downloader ItemDownloader
	workers    int
	limiter    *rate.Limiter
	logger     *log.Logger
}

type dispatchJob struct {
	index int
	item  models.CatalogItem
}

// NewDispatcher creates a Dispatcher over downloader.
func NewDispatcher(downloader ItemDownloader, opts DispatcherOpts, logger *log.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}

	d := &Dispatcher{downloader: downloader, workers: opts.Workers, logger: logger}
	if opts.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return d
}

// Workers is the configured pool size.
func (d *Dispatcher) Workers() int { return d.workers }

// Dispatch downloads every item into dir and returns one result per item, in completion order.
//
// Items without an id fail immediately without occupying a worker. A failing item never
// cancels its siblings. When ctx ends, items not yet started fail with ctx's error.
// onResult, if set, runs on the calling goroutine once per result; a panic inside it is
// logged and collection continues.
func (d *Dispatcher) Dispatch(ctx context.Context, items []models.CatalogItem, dir string, onResult func(Result)) []Result {
	out := make(chan Result, len(items))
	jobs := make(chan dispatchJob, len(items))

	pending := 0
	for i, item := range items {
		if item.ID == "" {
			out <- Result{Item: item, Index: i, Err: &shared.DownloadError{Err: shared.ErrMissingID}}
			continue
		}
		jobs <- dispatchJob{index: i, item: item}
		pending++
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < min(d.workers, pending); w++ {
		wg.Add(1)
		go d.worker(ctx, &wg, jobs, out, dir)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]Result, 0, len(items))
	for res := range out {
		results = append(results, res)
		d.notify(onResult, res)
	}
	return results
}

func (d *Dispatcher) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan dispatchJob, out chan<- Result, dir string) {
	defer wg.Done()

	for job := range jobs {
		res := Result{Item: job.item, Index: job.index}

		if err := ctx.Err(); err != nil {
			res.Err = &shared.DownloadError{ID: job.item.ID, Err: err}
			out <- res
			continue
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				res.Err = &shared.DownloadError{ID: job.item.ID, Err: err}
				out <- res
				continue
			}
		}

		res.Path, res.Err = d.downloader.Download(ctx, job.item.ID, dir)
		if res.Err != nil {
			res.Path = ""
		}
		out <- res
	}
}

func (d *Dispatcher) notify(onResult func(Result), res Result) {
	if onResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("result callback panicked", "id", res.Item.ID, "panic", r)
		}
	}()
	onResult(res)
}
