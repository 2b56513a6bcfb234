// Command summarize_watch scans a drop directory of lesson documents
// (.pdf/.docx/.pptx), runs the extract -> summarize -> persist pipeline for
// one user, and optionally keeps watching the directory for new files.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"lessonsum/models"
	"lessonsum/pkg/extract"
	"lessonsum/pkg/summarize"
)

// Global DB handle for helper funcs
var db *gorm.DB

var client *summarize.Client

// global flags (parsed in main)
var (
	verbose  bool
	maxChars = 4000
)

// preload cache: existing summaries by file name, to keep reruns idempotent
type preloadState struct {
	byFile map[string]*models.Summary
	mu     sync.RWMutex
}

func newPreloadState() *preloadState {
	return &preloadState{byFile: make(map[string]*models.Summary, 1024)}
}

func (ps *preloadState) get(name string) (*models.Summary, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	s, ok := ps.byFile[name]
	return s, ok
}

func (ps *preloadState) put(s *models.Summary) {
	ps.mu.Lock()
	ps.byFile[s.FileName] = s
	ps.mu.Unlock()
}

func mustInitDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatalf("DB_DSN must be set in environment to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}

func main() {
	dirFlag := flag.String("dir", "dropbox", "directory to scan for lesson documents")
	userFlag := flag.String("user", "admin", "username that will own created summaries")
	dryRun := flag.Bool("dry-run", false, "Skip DB and summarizer; just list (and with --verbose, extract)")
	watch := flag.Bool("watch", false, "Watch directory for new files")
	workers := flag.Int("workers", 0, "Worker pool size (default NumCPU)")
	flag.BoolVar(&verbose, "verbose", false, "Verbose per-file logging")
	flag.Parse()

	if v := os.Getenv("SUMMARY_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxChars = n
		}
	}

	if *dryRun {
		log.Printf("Dry-run: scanning %s (no DB or summarizer interaction)", *dirFlag)
		files := listDocumentFiles(*dirFlag)
		log.Printf("Found %d candidate files", len(files))
		if verbose {
			for _, f := range files {
				data, err := os.ReadFile(filepath.Join(*dirFlag, f))
				if err != nil {
					continue
				}
				if text, err := extract.FromUpload(f, data); err == nil {
					logV("EXTRACT %s chars=%d", f, len(text))
				} else {
					logV("EXTRACT fail %s: %v", f, err)
				}
			}
		}
		return
	}

	var err error
	client, err = summarize.New(summarize.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	})
	if err != nil {
		log.Fatalf("summarizer config: %v", err)
	}

	db = mustInitDBFromEnv()
	user := resolveUser(*userFlag)
	ps := preloadAll(user)
	log.Printf("Preloaded: summaries=%d", len(ps.byFile))

	files := listDocumentFiles(*dirFlag)
	log.Printf("Scanning %d files (workers=%d)", len(files), effectiveWorkers(*workers))
	runWorkerPool(*dirFlag, user, ps, files, effectiveWorkers(*workers))

	if *watch {
		if err := watchDirectory(*dirFlag, user, ps, effectiveWorkers(*workers)); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

// preloadAll fetches existing summaries to minimize per-file queries.
func preloadAll(user models.User) *preloadState {
	ps := newPreloadState()
	var sums []models.Summary
	if err := db.Where("user_id = ?", user.ID).Find(&sums).Error; err == nil {
		for i := range sums {
			s := sums[i]
			ps.byFile[s.FileName] = &s
		}
	}
	return ps
}

func resolveUser(username string) models.User {
	var u models.User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		log.Fatalf("user %q not found: %v", username, err)
	}
	return u
}

func listDocumentFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !extract.Supported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func watchDirectory(dir string, user models.User, ps *preloadState, workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", dir)

	fileCh := make(chan string, 256)
	go func() {
		// debounce map of pending files: a Create event fires before the
		// writer finishes, so wait for the name to go quiet
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if !extract.Supported(name) {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					close(fileCh)
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	go runWorkerPool(dir, user, ps, nil, workers, fileCh)
	// block forever (Ctrl+C to exit)
	select {}
}

// worker pool orchestrator
func runWorkerPool(dir string, user models.User, ps *preloadState, initial []string, workers int, extraCh ...<-chan string) {
	fileCh := make(chan string, 1024)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				processSingleFile(dir, name, user, ps)
			}
		}()
	}
	go func() {
		for _, f := range initial {
			fileCh <- f
		}
		for _, ch := range extraCh {
			go func(c <-chan string) {
				for n := range c {
					fileCh <- n
				}
			}(ch)
		}
		// if no extraCh (scan only) close when done
		if len(extraCh) == 0 {
			close(fileCh)
		}
	}()
	if len(extraCh) == 0 {
		wg.Wait()
	}
}

// processSingleFile runs the pipeline for one file. Failures leave the file
// in place so a later scan can retry; successes move it to processed/.
func processSingleFile(dir, name string, user models.User, ps *preloadState) {
	if _, ok := ps.get(name); ok {
		logV("SKIP summary exists %s", name)
		return
	}

	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("ERROR read %s: %v", name, err)
		return
	}
	text, err := extract.FromUpload(name, data)
	if err != nil {
		log.Printf("ERROR extract %s: %v", name, err)
		return
	}
	if strings.TrimSpace(text) == "" {
		logV("SKIP no readable text %s", name)
		return
	}
	text = truncateRunes(text, maxChars)

	res, err := client.Summarize(context.Background(), text)
	if err != nil {
		log.Printf("ERROR summarize %s: %v", name, err)
		return
	}

	// Re-check in case another worker finished the same name first
	if _, ok := ps.get(name); ok {
		return
	}
	rec := models.Summary{UserID: user.ID, FileName: name, OriginalText: text, SummaryText: res.Summary}
	if err := db.Create(&rec).Error; err != nil {
		log.Printf("ERROR create summary %s: %v", name, err)
		return
	}
	ps.put(&rec)
	log.Printf("SUMMARY id=%d file=%s overview=%q", rec.ID, name, res.Overview)

	// Move the processed file out of the drop dir so it is handled only once
	if err := moveToProcessed(path, dir, name); err != nil {
		log.Printf("WARN failed to move processed file %s: %v", name, err)
	} else {
		logV("moved processed %s", name)
	}
}

// local copy (cannot rely on the server binary helper)
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// moveToProcessed moves a file into <dir>/processed/<name>. It attempts an
// atomic rename and falls back to copy+remove across filesystems.
func moveToProcessed(srcFullPath, dir, name string) error {
	processedDir := filepath.Join(dir, "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(processedDir, name)
	if err := os.Rename(srcFullPath, dst); err == nil {
		return nil
	}
	return copyRemove(srcFullPath, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	_ = out.Close()
	return os.Remove(src)
}
