package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/robot"
	"github.com/robotalks/guard.go/pkg/state"
	"github.com/robotalks/guard.go/pkg/tasks"
)

const placeholderPage = "<html><body><p>Image data not available</p></body></html>"

// Server maps HTTP requests to the robot state.
type Server struct {
	Store *state.Store
	Modes *robot.ModeController
	// Loop answers the state routes inside a tick when set.
	Loop           fx.LoopControl
	Limiter        *IPRateLimiter
	Metrics        http.Handler
	RequestTimeout time.Duration
}

// NewServer creates a Server.
func NewServer(store *state.Store, modes *robot.ModeController, loop fx.LoopControl) *Server {
	return &Server{
		Store:          store,
		Modes:          modes,
		Loop:           loop,
		RequestTimeout: defaultConfig.RequestTimeout,
	}
}

// NewServer creates a Server using the config.
func (c *Config) NewServer(store *state.Store, modes *robot.ModeController, loop fx.LoopControl) *Server {
	s := NewServer(store, modes, loop)
	s.RequestTimeout = c.RequestTimeout
	if c.Rate > 0 {
		s.Limiter = NewIPRateLimiter(c.Rate, c.Burst)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	// The limiter keys on the peer address, before RealIP rewrites it
	// from client supplied headers.
	if s.Limiter != nil {
		r.Use(s.Limiter.Middleware)
	}
	r.Use(middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", s.healthz)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}
	r.Handle("/ws", websocket.Handler(s.streamStatus))
	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache, s.inLoop)
		r.Get("/", s.statusPage)
		r.Get("/mode/{mode}", s.setMode)
		r.Get("/camera", s.camera)
		r.Get("/api/status", s.apiStatus)
	})
	return r
}

// inLoop hands the request to the loop and waits until it's answered.
func (s *Server) inLoop(next http.Handler) http.Handler {
	if s.Loop == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := tasks.NewRequest(w, r, next)
		s.Loop.PostMessage(req)
		s.Loop.TriggerNext()

		ctx := r.Context()
		if s.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
			defer cancel()
		}
		select {
		case <-req.Done():
			return
		case <-ctx.Done():
		}
		if req.Claim() {
			glog.Warningf("http: %s %s not served: %v", r.Method, r.URL.Path, ctx.Err())
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		<-req.Done()
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) statusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderStatusPage(w, s.Store.Snapshot()); err != nil {
		glog.Errorf("http: render status page: %v", err)
	}
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	mode, err := state.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, err := s.Modes.SetMode(mode, robot.SourceHTTP); err != nil {
		glog.Errorf("http: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) camera(w http.ResponseWriter, r *http.Request) {
	frame := s.Store.Snapshot().Frame
	if !frame.Present {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(placeholderPage))
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(protocol.PictureBytes(frame.Payload)))
	w.Write(frame.Payload)
}

func (s *Server) apiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, newStatusView(s.Store.Snapshot()))
}
