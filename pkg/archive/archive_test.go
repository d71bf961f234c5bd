package archive

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/robotalks/guard.go/pkg/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

type upload struct {
	key, contentType string
	data             []byte
}

type fakeUploader struct {
	lock    sync.Mutex
	uploads []upload
	err     error
	block   chan struct{}
}

func (u *fakeUploader) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if u.block != nil {
		select {
		case <-u.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	u.lock.Lock()
	defer u.lock.Unlock()
	u.uploads = append(u.uploads, upload{key: key, data: data, contentType: contentType})
	return u.err
}

func (u *fakeUploader) count() int {
	u.lock.Lock()
	defer u.lock.Unlock()
	return len(u.uploads)
}

func (u *fakeUploader) get(n int) upload {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.uploads[n]
}

type counter struct {
	lock             sync.Mutex
	archived, failed int
	dropped          int
}

func (c *counter) FrameArchived(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err != nil {
		c.failed++
	} else {
		c.archived++
	}
}

func (c *counter) FrameDropped() {
	c.lock.Lock()
	c.dropped++
	c.lock.Unlock()
}

func (c *counter) snapshot() (int, int, int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.archived, c.failed, c.dropped
}

// runArchiver subscribes before returning so no change is missed.
func runArchiver(a *Archiver) func() {
	sub := a.Store.Subscribe()
	lastSeq := a.Store.Snapshot().Frame.Seq
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.watch(ctx, sub, lastSeq)
	}()
	go func() {
		defer wg.Done()
		a.upload(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
		sub.Close()
	}
}

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestArchiveGuardFrames(t *testing.T) {
	store, up, obs := state.NewStore(), &fakeUploader{}, &counter{}
	a := NewArchiver(up, store, "car1", 4)
	a.Prefix = "frames/"
	a.Observer = obs
	stop := runArchiver(a)
	defer stop()

	at := time.Unix(1700000000, 5)
	store.SetFrame(jpeg, at)
	require.Eventually(t, func() bool { return up.count() == 1 }, time.Second, time.Millisecond)
	u := up.get(0)
	require.Equal(t, "frames/car1/1700000000000000005.jpg", u.key)
	require.Equal(t, "image/jpeg", u.contentType)
	require.Equal(t, jpeg, u.data)

	store.SetBattery(6.5, 7, at)
	store.SetMode(state.ModeToy)
	store.SetFrame([]byte("toy mode frame"), at.Add(time.Second))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, up.count())

	archived, failed, _ := obs.snapshot()
	require.Equal(t, 1, archived)
	require.Zero(t, failed)
}

func TestArchiveDecodesPayloadLine(t *testing.T) {
	store, up := state.NewStore(), &fakeUploader{}
	stop := runArchiver(NewArchiver(up, store, "car1", 4))
	defer stop()

	store.SetFrame([]byte(base64.StdEncoding.EncodeToString(jpeg)), time.Unix(1700000000, 0))
	require.Eventually(t, func() bool { return up.count() == 1 }, time.Second, time.Millisecond)
	u := up.get(0)
	require.Equal(t, jpeg, u.data)
	require.Equal(t, "image/jpeg", u.contentType)
}

func TestArchiveUploadError(t *testing.T) {
	store, obs := state.NewStore(), &counter{}
	up := &fakeUploader{err: errors.New("denied")}
	a := NewArchiver(up, store, "car1", 1)
	a.Observer = obs
	stop := runArchiver(a)
	defer stop()

	store.SetFrame(jpeg, time.Now())
	require.Eventually(t, func() bool {
		_, failed, _ := obs.snapshot()
		return failed == 1
	}, time.Second, time.Millisecond)
}

func TestArchiveDropsWhenFull(t *testing.T) {
	store, obs := state.NewStore(), &counter{}
	up := &fakeUploader{block: make(chan struct{})}
	a := NewArchiver(up, store, "car1", 1)
	a.Observer = obs
	stop := runArchiver(a)
	defer stop()

	// one upload in flight, one queued, the rest dropped
	for i := 0; i < 5; i++ {
		store.SetFrame(jpeg, time.Now())
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return a.Dropped() > 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		_, _, dropped := obs.snapshot()
		return uint64(dropped) == a.Dropped()
	}, time.Second, time.Millisecond)
	close(up.block)
	require.Eventually(t, func() bool { return up.count() >= 1 }, time.Second, time.Millisecond)
}

func TestArchiveRun(t *testing.T) {
	store := state.NewStore()
	store.SetFrame(jpeg, time.Now())
	up := &fakeUploader{}
	a := NewArchiver(up, store, "car1", 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	// frames received before start are not archived
	require.Zero(t, up.count())
}

func TestConfig(t *testing.T) {
	conf := NewConfig()
	conf.Endpoint = ""
	require.False(t, conf.Enabled())
	conf.Endpoint = "localhost:9000"
	require.True(t, conf.Enabled())
	b, err := conf.NewBucket()
	require.NoError(t, err)
	require.Equal(t, "guard", b.Name)

	a := conf.NewArchiver(b, state.NewStore(), "car1")
	require.Equal(t, "archive", a.Name())
	require.Equal(t, "car1/0.jpg", a.Key(state.Frame{ReceivedAt: time.Unix(0, 0)}))
}
