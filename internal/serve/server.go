// Package serve answers Kodi repository requests from a published index and
// the addon package directories it was built from.
package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzhttp"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/archive"
	"github.com/kamusis/addonrepo/internal/checksum"
	"github.com/kamusis/addonrepo/internal/index"
	"github.com/kamusis/addonrepo/internal/logging"
	"github.com/kamusis/addonrepo/internal/scan"
)

// Defaults match the listen address and cache location Kodi repository
// addons are usually pointed at.
const (
	DefaultAddr     = "127.0.0.1:9001"
	DefaultCacheDir = ".zips"

	shutdownTimeout = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	AddonsDir string
	IndexDir  string
	// CacheDir holds built archives. Defaults to <AddonsDir>/.zips.
	CacheDir string
	Addr     string
	// Scan is used to map indexed ids back to package directories.
	Scan   scan.Options
	Logger *log.Logger
}

// Server serves one published index. The loaded state is replaced
// atomically by Reload.
type Server struct {
	opts  Options
	log   *log.Logger
	cache archive.Cache
	state atomic.Pointer[state]
}

type state struct {
	catalog *index.Catalog
	// packages holds only addons whose directory still matches the index.
	packages map[string]addon.Descriptor
}

// New loads the index and returns a ready Server.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.AddonsDir == "" || opts.IndexDir == "" {
		return nil, fmt.Errorf("addons directory and index directory are required")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(opts.AddonsDir, DefaultCacheDir)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	opts.Scan.Logger = logger
	opts.Scan.FailOnError = false

	s := &Server{opts: opts, log: logger, cache: archive.Cache{Dir: opts.CacheDir}}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the published index and rescans package directories. On
// error the previously loaded state stays in service.
func (s *Server) Reload(ctx context.Context) error {
	cat, err := index.Load(s.opts.IndexDir)
	if err != nil {
		return err
	}
	res, err := scan.New(s.opts.Scan).Scan(ctx, s.opts.AddonsDir)
	if err != nil {
		return err
	}
	scanned := make(map[string]addon.Descriptor, len(res.Descriptors))
	for _, d := range res.Descriptors {
		scanned[d.ID] = d
	}

	packages := make(map[string]addon.Descriptor, len(cat.Entries))
	for _, e := range cat.Entries {
		d, ok := scanned[e.ID]
		switch {
		case !ok:
			s.log.Warn("indexed addon has no package directory", "id", e.ID)
		case d.Checksum.Hex() != e.Checksum || d.Version.String() != e.Version:
			s.log.Warn("package changed since index was built; archive withheld", "id", e.ID, "path", d.SourcePath)
		default:
			packages[e.ID] = d
		}
	}

	s.state.Store(&state{catalog: cat, packages: packages})
	s.log.Info("index loaded", "dir", s.opts.IndexDir, "addons", len(cat.Entries), "servable", len(packages))
	return nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /"+index.IndexFile, gzhttp.GzipHandler(http.HandlerFunc(s.handleIndex)))
	mux.Handle("GET /"+index.RecordFile, gzhttp.GzipHandler(http.HandlerFunc(s.handleRecord)))
	mux.HandleFunc("GET /"+index.MD5File, s.handleMD5)
	mux.HandleFunc("GET /addons/{id}", s.handleAddon)
	mux.HandleFunc("GET /{id}/{file}", s.handleArchive)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", s.opts.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("repository server started", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("shutdown error", "error", err)
		return err
	}
	s.log.Info("repository server stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.state.Load()
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("ETag", `"`+st.catalog.Record.IndexChecksum+`"`)
	http.ServeContent(w, r, index.IndexFile, time.Time{}, bytes.NewReader(st.catalog.Document))
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	st := s.state.Load()
	w.Header().Set("Content-Type", "application/json")
	http.ServeContent(w, r, index.RecordFile, time.Time{}, bytes.NewReader(st.catalog.RecordJSON))
}

func (s *Server) handleMD5(w http.ResponseWriter, r *http.Request) {
	st := s.state.Load()
	if st.catalog.MD5 == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeContent(w, r, index.MD5File, time.Time{}, bytes.NewReader(st.catalog.MD5))
}

// handleAddon also receives archive requests for an addon whose id is
// "addons", since /addons/{file} matches this route first.
func (s *Server) handleAddon(w http.ResponseWriter, r *http.Request) {
	st := s.state.Load()
	id := r.PathValue("id")
	if e, ok := st.catalog.Lookup("addons"); ok && id == e.ArchiveName() {
		s.serveArchive(w, r, st, "addons", id)
		return
	}
	e, ok := st.catalog.Lookup(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(e)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.serveArchive(w, r, s.state.Load(), r.PathValue("id"), r.PathValue("file"))
}

func (s *Server) serveArchive(w http.ResponseWriter, r *http.Request, st *state, id, file string) {
	e, ok := st.catalog.Lookup(id)
	if !ok || file != e.ArchiveName() {
		http.NotFound(w, r)
		return
	}
	pkg, ok := st.packages[id]
	if !ok {
		http.NotFound(w, r)
		return
	}

	p, err := s.archivePath(e, pkg)
	if err != nil {
		s.log.Error("cannot serve archive", "id", id, "err", err)
		if errors.Is(err, index.ErrChecksumMismatch) {
			http.Error(w, "package changed since the index was built", http.StatusGone)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	http.ServeFile(w, r, p)
}

// archivePath returns a cached archive for e, building it when the package
// directory still hashes to the indexed checksum.
func (s *Server) archivePath(e index.Entry, pkg addon.Descriptor) (string, error) {
	sum, err := checksum.ParseDigest(e.Checksum)
	if err != nil {
		return "", err
	}
	if p, ok := s.cache.Lookup(e.ID, e.Version, sum); ok {
		return p, nil
	}
	fresh, files, err := checksum.SumDir(pkg.SourcePath, s.opts.Scan.Excludes)
	if err != nil {
		return "", err
	}
	if fresh != sum {
		return "", fmt.Errorf("%w: %s", index.ErrChecksumMismatch, pkg.SourcePath)
	}
	return s.cache.Ensure(e.ID, e.Version, sum, files)
}
