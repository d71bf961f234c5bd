package web

import (
	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// streamStatus sends the status on connect and after every change
// until the client goes away or the server shuts down.
func (s *Server) streamStatus(conn *websocket.Conn) {
	defer conn.Close()
	sub := s.Store.Subscribe()
	defer sub.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		var msg []byte
		for {
			if err := websocket.Message.Receive(conn, &msg); err != nil {
				return
			}
		}
	}()

	ctx := conn.Request().Context()
	if err := websocket.JSON.Send(conn, newStatusView(s.Store.Snapshot())); err != nil {
		glog.V(1).Infof("ws: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case snapshot := <-sub.C:
			if err := websocket.JSON.Send(conn, newStatusView(snapshot)); err != nil {
				glog.V(1).Infof("ws: %v", err)
				return
			}
		}
	}
}
