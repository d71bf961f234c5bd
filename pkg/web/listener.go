package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type announced.
const ServiceType = "_http._tcp"

const shutdownTimeout = 5 * time.Second

// ErrListenerStopped is returned when starting a stopped Listener.
var ErrListenerStopped = errors.New("http listener stopped")

// Listener starts serving on demand and stops with its Run context.
type Listener struct {
	Addr     string
	Handler  http.Handler
	MDNS     bool
	MDNSName string
	DeviceID string

	base    context.Context
	cancel  context.CancelFunc
	lock    sync.Mutex
	server  *http.Server
	ln      net.Listener
	served  chan struct{}
	mdns    *zeroconf.Server
	stopped bool
}

// NewListener creates a Listener.
func NewListener(addr string, handler http.Handler) *Listener {
	l := &Listener{Addr: addr, Handler: handler}
	l.base, l.cancel = context.WithCancel(context.Background())
	return l
}

// NewListener creates a Listener using the config.
func (c *Config) NewListener(handler http.Handler, deviceID string) *Listener {
	l := NewListener(c.Addr, handler)
	l.MDNS, l.MDNSName, l.DeviceID = c.MDNS, c.MDNSName, deviceID
	return l
}

// Name implements Named.
func (l *Listener) Name() string {
	return "http-listener"
}

// Start listens and serves in the background. It returns once the
// listening socket is open. Starting twice is a no-op.
func (l *Listener) Start() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.stopped {
		return ErrListenerStopped
	}
	if l.server != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.Addr, err)
	}
	srv := &http.Server{
		Handler:           l.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return l.base },
	}
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("http: serve: %v", err)
		}
	}()
	l.server, l.ln, l.served = srv, ln, served
	glog.Infof("http: listening on %s", ln.Addr())
	if l.MDNS {
		l.announce(ln.Addr())
	}
	return nil
}

func (l *Listener) announce(addr net.Addr) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return
	}
	var txt []string
	if l.DeviceID != "" {
		txt = append(txt, "id="+l.DeviceID)
	}
	server, err := zeroconf.Register(l.MDNSName, ServiceType, "local.", tcpAddr.Port, txt, nil)
	if err != nil {
		// not fatal, the service is still reachable by address
		glog.Warningf("mdns: register %s: %v", l.MDNSName, err)
		return
	}
	l.mdns = server
	glog.Infof("mdns: announced %s.%s on port %d", l.MDNSName, ServiceType, tcpAddr.Port)
}

// ListenAddr returns the listening address, nil before Start.
func (l *Listener) ListenAddr() net.Addr {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Run implements Runnable. It shuts down the server when ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	<-ctx.Done()
	return l.Stop()
}

// Stop shuts down the server and the mDNS announcement.
func (l *Listener) Stop() error {
	l.lock.Lock()
	srv, served, mdns := l.server, l.served, l.mdns
	l.stopped, l.mdns = true, nil
	l.lock.Unlock()

	// long lived requests (websocket) end with the base context
	l.cancel()
	if mdns != nil {
		mdns.Shutdown()
	}
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-served
	return err
}
