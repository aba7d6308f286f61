package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type fetchRequest struct {
	Src   string
	Index int
}

type fetchResult struct {
	Index       int
	OriginalSrc string
	Data        []byte
	Err         error
}

// imageFetcher downloads image bytes through a fixed pool of workers. Every
// request yields exactly one result carrying the request's index; completion
// order is unspecified and callers correlate by index.
type imageFetcher struct {
	client  *http.Client
	workers int
}

func newImageFetcher(client *http.Client, workers int) *imageFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if workers < 1 {
		workers = 1
	}
	return &imageFetcher{client: client, workers: workers}
}

// FetchAll resolves every request and returns one result per request, in
// completion order.
func (f *imageFetcher) FetchAll(ctx context.Context, reqs []fetchRequest) []fetchResult {
	if len(reqs) == 0 {
		return nil
	}

	jobs := make(chan fetchRequest, len(reqs))
	out := make(chan fetchResult, len(reqs))
	workers := f.workers
	if workers > len(reqs) {
		workers = len(reqs)
	}

	for i := 0; i < workers; i++ {
		go func() {
			for req := range jobs {
				out <- f.fetchOne(ctx, req)
			}
		}()
	}
	for _, req := range reqs {
		jobs <- req
	}
	close(jobs)

	results := make([]fetchResult, 0, len(reqs))
	for range reqs {
		results = append(results, <-out)
	}
	return results
}

func (f *imageFetcher) fetchOne(ctx context.Context, req fetchRequest) fetchResult {
	res := fetchResult{Index: req.Index, OriginalSrc: req.Src}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Src, nil)
	if err != nil {
		res.Err = fmt.Errorf("invalid url: %w", err)
		return res
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		res.Err = fmt.Errorf("fetch failed: status=%d", resp.StatusCode)
		return res
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Err = err
		return res
	}
	if len(body) == 0 {
		res.Err = fmt.Errorf("empty response body")
		return res
	}
	res.Data = body
	return res
}
