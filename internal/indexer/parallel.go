package indexer

import (
	"context"
	"sync"
	"time"

	"media-streamer/internal/logging"
	"media-streamer/internal/media"
)

// attachThumbnails fills in the Thumbnail field of each video using a
// bounded pool of workers. Failures leave the field empty.
func (idx *Indexer) attachThumbnails(ctx context.Context, videos []media.Video) {
	if idx.thumbs == nil || len(videos) == 0 {
		return
	}

	workers := min(idx.config.ThumbnailWorkers, len(videos))
	jobs := make(chan int, len(videos))
	for i := range videos {
		jobs <- i
	}
	close(jobs)

	start := time.Now()
	var failed int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				name, err := idx.thumbs.Generate(ctx, videos[i].Path)
				if err != nil {
					logging.Debug("Thumbnail for %s failed: %v", videos[i].RelativePath, err)
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				// Each worker owns distinct indexes.
				videos[i].Thumbnail = idx.config.ThumbnailURLPrefix + name
			}
		}()
	}
	wg.Wait()

	if failed > 0 {
		logging.Warn("Thumbnails: %d of %d failed", failed, len(videos))
	}
	logging.Debug("Thumbnails for %d videos checked in %v with %d workers",
		len(videos), time.Since(start).Round(time.Millisecond), workers)
}
