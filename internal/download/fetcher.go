package download

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lrstanley/go-ytdlp"

	"github.com/desertthunder/ymd/internal/shared"
)

// BestAudioFormat prefers m4a, then webm, then whatever audio stream is best.
const BestAudioFormat = "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio"

// WatchURL is the page the fetch tool is pointed at for an item id.
func WatchURL(id string) string {
	return "https://music.youtube.com/watch?v=" + id
}

// Request describes one fetch.
type Request struct {
	ID             string
	Dir            string
	AudioFormat    string
	FallbackFormat string
}

// TargetFormat is the transcoding target for the request. mp3 wins when either format
// asks for it; otherwise the primary format, else the fallback, else "" to keep the best
// available stream as-is.
func (r Request) TargetFormat() string {
	if r.AudioFormat == "mp3" || r.FallbackFormat == "mp3" {
		return "mp3"
	}
	for _, f := range []string{r.AudioFormat, r.FallbackFormat} {
		if f != "" && f != "best" {
			return f
		}
	}
	return ""
}

// Fetcher performs the external fetch of one item into req.Dir, naming the result
// after req.ID. It does not retry.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) error
}

// FetcherFunc adapts a function to [Fetcher].
type FetcherFunc func(ctx context.Context, req Request) error

func (f FetcherFunc) Fetch(ctx context.Context, req Request) error { return f(ctx, req) }

// YTDLPFetcher runs yt-dlp through go-ytdlp.
type YTDLPFetcher struct {
	// Executable overrides the yt-dlp binary; empty resolves it from PATH.
	Executable string
	Logger     *log.Logger
}

var httpErrorPattern = regexp.MustCompile(`HTTP Error (\d{3})`)

// Fetch downloads the audio for req.ID and embeds metadata and thumbnail.
func (f *YTDLPFetcher) Fetch(ctx context.Context, req Request) error {
	if req.ID == "" {
		return Permanent(shared.ErrMissingID)
	}

	cmd := ytdlp.New().
		Format(BestAudioFormat).
		Output(filepath.Join(req.Dir, "%(id)s.%(ext)s")).
		NoPlaylist().
		Quiet().
		NoWarnings().
		NoProgress().
		WriteThumbnail().
		EmbedMetadata().
		EmbedThumbnail()

	if f.Executable != "" {
		cmd.SetExecutable(f.Executable)
	}
	if target := req.TargetFormat(); target != "" {
		cmd.ExtractAudio().AudioFormat(target)
		if target == "mp3" {
			cmd.AudioQuality("320K")
		}
	}

	if f.Logger != nil {
		f.Logger.Debug("fetching", "id", req.ID, "format", req.TargetFormat())
	}

	res, err := cmd.Run(ctx, WatchURL(req.ID))
	if err == nil {
		return nil
	}

	var stderr string
	if res != nil {
		stderr = res.Stderr
	}
	return classifyRun(ctx, err, stderr)
}

// classifyRun tags a failed yt-dlp invocation using the HTTP status it reported when present.
func classifyRun(ctx context.Context, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Permanent(errors.Join(ctxErr, err))
	}

	detail := lastErrorLine(stderr)
	wrapped := describe(err, detail)

	if m := httpErrorPattern.FindStringSubmatch(stderr); m != nil {
		code, _ := strconv.Atoi(m[1])
		if class := classifyHTTPStatus(code); class != ClassUnknown {
			return &FetchError{Class: class, Err: wrapped}
		}
	}
	return &FetchError{Class: ClassUnknown, Err: wrapped}
}

// lastErrorLine picks the last "ERROR:" line yt-dlp printed, or the last non-empty line.
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		if last == "" {
			last = line
		}
	}
	return last
}
