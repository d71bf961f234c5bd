package telemetry

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// ErrTimeout indicates the broker didn't acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// DefaultTokenTimeout bounds the wait for a broker acknowledgement.
const DefaultTokenTimeout = 5 * time.Second

// Handler is called with the topic relative to the prefix.
type Handler func(topic string, payload []byte)

// PubSub is the messaging used by the Reporter.
type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler Handler) (io.Closer, error)
}

// Queue is a PubSub on an MQTT client. All topics are relative
// to TopicPrefix.
type Queue struct {
	Client       paho.Client
	TopicPrefix  string
	TokenTimeout time.Duration

	lock sync.RWMutex
	subs map[string][]*Subscription
}

// Subscription is a handler registered on a topic filter.
type Subscription struct {
	queue   *Queue
	filter  string
	handler Handler
}

// MatchTopic tells whether topic matches the filter with + and # wildcards.
func MatchTopic(topic, filter string) bool {
	levels, patterns := strings.Split(topic, "/"), strings.Split(filter, "/")
	for i, p := range patterns {
		if p == "#" && i+1 == len(patterns) {
			return true
		}
		if i >= len(levels) {
			return false
		}
		if p != "+" && p != levels[i] {
			return false
		}
	}
	return len(levels) == len(patterns)
}

// ClientOptionsFromURL parses mqtt://[user:pass@]host:port/prefix/?client-id=id.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse mqtt url: %w", err)
	}
	scheme := u.Scheme
	switch scheme {
	case "", "mqtt":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	}
	opts := paho.NewClientOptions().
		AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, strings.TrimPrefix(u.Path, "/"), nil
}

// NewQueue creates a Queue, the client is not connected.
func NewQueue(opts *paho.ClientOptions, topicPrefix string) *Queue {
	q := &Queue{TopicPrefix: topicPrefix, TokenTimeout: DefaultTokenTimeout}
	opts.SetOnConnectHandler(q.onConnect)
	opts.SetConnectionLostHandler(q.onConnectionLost)
	q.Client = paho.NewClient(opts)
	return q
}

// NewQueueFromURL creates a Queue from a broker URL.
func NewQueueFromURL(brokerURL string) (*Queue, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return NewQueue(opts, prefix), nil
}

// Connect connects to the broker.
func (q *Queue) Connect() error {
	return q.wait(q.Client.Connect())
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(250)
	return nil
}

func (q *Queue) wait(token paho.Token) error {
	timeout := q.TokenTimeout
	if timeout <= 0 {
		timeout = DefaultTokenTimeout
	}
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// Publish implements PubSub.
func (q *Queue) Publish(topic string, payload []byte) error {
	glog.V(2).Infof("PUB %q %d bytes", q.TopicPrefix+topic, len(payload))
	return q.wait(q.Client.Publish(q.TopicPrefix+topic, 0, false, payload))
}

// Subscribe implements PubSub. The subscription is kept and renewed on
// reconnect even when the initial subscribe fails.
func (q *Queue) Subscribe(filter string, handler Handler) (io.Closer, error) {
	sub := &Subscription{queue: q, filter: filter, handler: handler}
	q.lock.Lock()
	if q.subs == nil {
		q.subs = make(map[string][]*Subscription)
	}
	first := len(q.subs[filter]) == 0
	q.subs[filter] = append(q.subs[filter], sub)
	q.lock.Unlock()
	if !first {
		return sub, nil
	}
	glog.V(2).Infof("SUB %q", q.TopicPrefix+filter)
	return sub, q.wait(q.Client.Subscribe(q.TopicPrefix+filter, 0, q.dispatch))
}

func (q *Queue) resubscribe() {
	filters := make(map[string]byte)
	q.lock.RLock()
	for filter := range q.subs {
		filters[q.TopicPrefix+filter] = 0
	}
	q.lock.RUnlock()
	if len(filters) == 0 {
		return
	}
	token := q.Client.SubscribeMultiple(filters, q.dispatch)
	go func() {
		if err := q.wait(token); err != nil {
			glog.Warningf("mqtt: resubscribe: %v", err)
		}
	}()
}

func (q *Queue) onConnect(paho.Client) {
	glog.Info("mqtt: connected")
	q.resubscribe()
}

func (q *Queue) onConnectionLost(_ paho.Client, err error) {
	glog.Warningf("mqtt: connection lost: %v", err)
}

func (q *Queue) dispatch(_ paho.Client, msg paho.Message) {
	topic := msg.Topic()
	if !strings.HasPrefix(topic, q.TopicPrefix) {
		return
	}
	topic = topic[len(q.TopicPrefix):]
	glog.V(2).Infof("RCV %q", topic)
	var handlers []Handler
	q.lock.RLock()
	for filter, subs := range q.subs {
		if MatchTopic(topic, filter) {
			for _, sub := range subs {
				handlers = append(handlers, sub.handler)
			}
		}
	}
	q.lock.RUnlock()
	payload := msg.Payload()
	for _, h := range handlers {
		h(topic, payload)
	}
}

// Close removes the handler, the filter is unsubscribed with the
// last handler.
func (s *Subscription) Close() error {
	q := s.queue
	q.lock.Lock()
	subs := q.subs[s.filter]
	for i, sub := range subs {
		if sub == s {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	last := len(subs) == 0
	if last {
		delete(q.subs, s.filter)
	} else {
		q.subs[s.filter] = subs
	}
	q.lock.Unlock()
	if !last || !q.Client.IsConnected() {
		return nil
	}
	glog.V(2).Infof("UNSUB %q", q.TopicPrefix+s.filter)
	return q.wait(q.Client.Unsubscribe(q.TopicPrefix + s.filter))
}
