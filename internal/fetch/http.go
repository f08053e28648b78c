package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"gantry/internal/progress"
	"gantry/internal/transfer"
)

// progressInterval throttles progress callbacks during a download.
const progressInterval = 500 * time.Millisecond

// HTTPFetcher downloads sources over HTTP(S) into the target path.
type HTTPFetcher struct {
	client   *http.Client
	interval time.Duration
}

// NewHTTPFetcher builds a fetcher with a long-transfer-friendly client.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			// No overall timeout; downloads are bounded by the attempt
			// context and the stall watchdog.
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
		interval: progressInterval,
	}
}

// Fetch implements transfer.Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURL, destPath string, progressFn transfer.ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return transfer.Wrap(transfer.ErrNotFound, "fetch", "build request", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyNetErr("request", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, sourceURL); err != nil {
		return err
	}

	total := resp.ContentLength
	if total < 0 {
		total = progress.UnknownTotal
	}

	out, err := os.Create(destPath)
	if err != nil {
		if errors.Is(err, unix.ENOSPC) {
			return transfer.Wrap(transfer.ErrDiskFull, "fetch", destPath, err)
		}
		return transfer.Wrap(transfer.ErrTransient, "fetch", "create target", err)
	}
	defer func() { _ = out.Close() }()

	if progressFn != nil {
		progressFn(0, total)
	}

	buf := make([]byte, 256<<10)
	var written int64
	lastReport := time.Now()
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				if errors.Is(writeErr, unix.ENOSPC) {
					return transfer.Wrap(transfer.ErrDiskFull, "fetch", destPath, writeErr)
				}
				return transfer.Wrap(transfer.ErrTransient, "fetch", "write target", writeErr)
			}
			written += int64(n)
			if progressFn != nil && time.Since(lastReport) >= f.interval {
				progressFn(written, total)
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return classifyNetErr("read body", readErr)
		}
	}

	if total != progress.UnknownTotal && written != total {
		return transfer.Wrap(transfer.ErrTransient, "fetch",
			fmt.Sprintf("short body: %d of %d bytes", written, total), nil)
	}
	if err := out.Close(); err != nil {
		return transfer.Wrap(transfer.ErrTransient, "fetch", "close target", err)
	}

	if progressFn != nil {
		progressFn(written, total)
	}
	return nil
}

func classifyStatus(status int, sourceURL string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound, status == http.StatusGone:
		return transfer.Wrap(transfer.ErrNotFound, "fetch", sourceURL, fmt.Errorf("status %d", status))
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return transfer.Wrap(transfer.ErrAuth, "fetch", sourceURL, fmt.Errorf("status %d", status))
	case status == http.StatusTooManyRequests, status >= 500:
		return transfer.Wrap(transfer.ErrTransient, "fetch", sourceURL, fmt.Errorf("status %d", status))
	default:
		return transfer.Wrap(transfer.ErrNotFound, "fetch", sourceURL, fmt.Errorf("status %d", status))
	}
}

func classifyNetErr(operation string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return transfer.Wrap(transfer.ErrTimeout, "fetch", operation, err)
	}
	return transfer.Wrap(transfer.ErrTransient, "fetch", operation, err)
}
