package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	logging "github.com/ipfs/go-log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menta2k/catvsdog/internal/metrics"
	"github.com/menta2k/catvsdog/pkg/client"
	"github.com/menta2k/catvsdog/pkg/form"
	"github.com/menta2k/catvsdog/pkg/types"
)

var log = logging.Logger("web")

const sessionCookie = "catvsdog_session"

type Config struct {
	Field        string
	MaxBytes     int64
	SessionCache int
	SecureCookie bool
	FormOptions  form.Options
}

// Server serves the upload form. Each browser session gets its own form,
// kept in an LRU; an evicted session starts over with empty state.
type Server struct {
	classifier client.Classifier
	cfg        Config

	sessLk   sync.Mutex
	sessions *lru.Cache

	echo *echo.Echo
}

func NewServer(c client.Classifier, cfg Config) (*Server, error) {
	if cfg.Field == "" {
		cfg.Field = "file"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.SessionCache <= 0 {
		cfg.SessionCache = 10000
	}

	sessions, err := lru.NewWithEvict(cfg.SessionCache, func(key, value interface{}) {
		metrics.ActiveSessions.Dec()
	})
	if err != nil {
		return nil, fmt.Errorf("creating session cache: %w", err)
	}

	s := &Server{
		classifier: c,
		cfg:        cfg,
		sessions:   sessions,
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = &pageRenderer{}
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		log.Error(err)
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.GET("/", s.handleIndex)
	e.POST("/", s.handleSubmit)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo = e
	return s, nil
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until ctx is canceled
func (s *Server) Start(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// formFor returns the form bound to the request's session, creating the
// session when the cookie is missing or no longer known.
func (s *Server) formFor(c echo.Context) *form.Form {
	id := ""
	if ck, err := c.Cookie(sessionCookie); err == nil {
		id = ck.Value
	}

	s.sessLk.Lock()
	defer s.sessLk.Unlock()

	if id != "" {
		if v, ok := s.sessions.Get(id); ok {
			return v.(*form.Form)
		}
	}

	id = uuid.NewString()
	f := form.NewWithOptions(s.classifier, s.cfg.FormOptions)
	s.sessions.Add(id, f)
	metrics.ActiveSessions.Inc()

	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return f
}

func (s *Server) handleIndex(c echo.Context) error {
	f := s.formFor(c)
	return c.Render(http.StatusOK, "page", f.View("/"))
}

func (s *Server) handleSubmit(c echo.Context) error {
	f := s.formFor(c)

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.cfg.MaxBytes)

	files, err := s.readFiles(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.SelectFiles(files)

	res := f.Submit(req.Context())
	log.Debugf("submission finished: %s", res.Outcome())

	return c.Redirect(http.StatusSeeOther, "/")
}

// readFiles returns the files posted under the upload field. A missing field
// is an empty selection, not an error.
func (s *Server) readFiles(c echo.Context) ([]*types.File, error) {
	mf, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	var out []*types.File
	for _, fh := range mf.File[s.cfg.Field] {
		if fh.Filename == "" && fh.Size == 0 {
			// browsers send an empty part when nothing was picked
			continue
		}
		f, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) (*types.File, error) {
	r, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	return &types.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

type pageRenderer struct{}

func (r *pageRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return form.Page.Execute(w, data)
}
