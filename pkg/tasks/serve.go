package tasks

import (
	"net/http"
	"sync/atomic"

	"github.com/golang/glog"

	fx "github.com/robotalks/guard.go/pkg/framework"
)

// Request is an HTTP request posted to the loop to be answered
// inside a tick.
type Request struct {
	Writer  http.ResponseWriter
	Request *http.Request
	Handler http.Handler

	claimed atomic.Bool
	done    chan struct{}
}

// NewRequest creates a Request.
func NewRequest(w http.ResponseWriter, r *http.Request, h http.Handler) *Request {
	return &Request{Writer: w, Request: r, Handler: h, done: make(chan struct{})}
}

// NewMessage implements Message.
func (r *Request) NewMessage() fx.Message {
	return &Request{done: make(chan struct{})}
}

// Claim takes the exclusive right to answer the request.
// Only the first caller gets true.
func (r *Request) Claim() bool {
	return r.claimed.CompareAndSwap(false, true)
}

// Done is closed once the request is answered in the loop.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// serve answers the request, the observer is notified while the
// request is still owned by the loop.
func (r *Request) serve(o ServeObserver) {
	defer close(r.done)
	if o != nil {
		defer o.RequestServed(r.Request)
	}
	defer func() {
		if p := recover(); p != nil {
			glog.Errorf("http: %s %s panic: %v", r.Request.Method, r.Request.URL.Path, p)
			http.Error(r.Writer, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}()
	r.Handler.ServeHTTP(r.Writer, r.Request)
}

// ServeObserver is notified after a request is answered in the loop.
type ServeObserver interface {
	RequestServed(r *http.Request)
}

// Serve answers one queued HTTP request per step.
type Serve struct {
	Observer ServeObserver
}

// NewServe creates the HTTP serving task.
func NewServe() *Serve {
	return &Serve{}
}

// Name implements Named.
func (s *Serve) Name() string {
	return "http-serve"
}

// Step implements Task.
func (s *Serve) Step(tc fx.TickContext) (fx.Status, error) {
	var req *Request
	tc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		r, ok := mc.CurrentMessage().(*Request)
		if !ok {
			return
		}
		mc.MessageTaken()
		if r.Claim() {
			req = r
			mc.StopProcessing()
			return
		}
		glog.V(2).Infof("http: %s %s abandoned before serving", r.Request.Method, r.Request.URL.Path)
	}))
	if req == nil {
		return fx.Pending, nil
	}
	req.serve(s.Observer)
	return fx.Pending, nil
}
