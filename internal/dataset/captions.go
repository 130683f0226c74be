package dataset

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Caption is one annotated caption for an image.
type Caption struct {
	Image  string // image file name, e.g. "1000092795.jpg"
	Index  int    // caption index for the image (the #n suffix)
	Tokens []string
}

// ParseCaptions reads a Flickr30K captions file: one caption per line in
// the form "image.jpg#n<TAB>caption text". Malformed lines are skipped
// with a warning.
func ParseCaptions(path string) ([]Caption, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open captions: %w", err)
	}
	defer f.Close()

	var captions []Caption
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		key, caption, ok := strings.Cut(text, "\t")
		if !ok {
			skipped++
			slog.Warn("skipping caption line without tab separator", "path", path, "line", line)
			continue
		}
		img, idxStr, ok := strings.Cut(key, "#")
		if !ok {
			skipped++
			slog.Warn("skipping caption line without #index", "path", path, "line", line)
			continue
		}
		idx := 0
		if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil {
			skipped++
			slog.Warn("skipping caption line with bad index", "path", path, "line", line, "index", idxStr)
			continue
		}

		tokens := TokenizeWords(caption)
		if len(tokens) == 0 {
			skipped++
			continue
		}
		captions = append(captions, Caption{Image: img, Index: idx, Tokens: tokens})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan captions: %w", err)
	}
	if skipped > 0 {
		slog.Warn("skipped malformed caption lines", "path", path, "count", skipped)
	}
	return captions, nil
}

// VerifyImages checks in parallel that every captioned image exists under
// imageDir, returning the captions whose image is present. maxWorkers
// bounds the concurrent stat calls.
func VerifyImages(captions []Caption, imageDir string, maxWorkers int) ([]Caption, error) {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	unique := make(map[string]bool)
	for _, c := range captions {
		unique[c.Image] = false
	}
	names := make([]string, 0, len(unique))
	for name := range unique {
		names = append(names, name)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(maxWorkers)
	for _, name := range names {
		name := name
		g.Go(func() error {
			info, err := os.Stat(filepath.Join(imageDir, name))
			if err != nil || info.IsDir() {
				return nil // missing images are filtered, not fatal
			}
			mu.Lock()
			unique[name] = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]Caption, 0, len(captions))
	missing := 0
	for _, c := range captions {
		if unique[c.Image] {
			kept = append(kept, c)
		} else {
			missing++
		}
	}
	if missing > 0 {
		slog.Warn("dropped captions with missing images", "dir", imageDir, "count", missing)
	}
	return kept, nil
}
