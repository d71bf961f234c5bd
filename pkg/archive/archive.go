// Package archive uploads the pictures taken while guarding to
// S3 compatible storage.
package archive

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/state"
)

// Config defines the archive settings.
type Config struct {
	// Endpoint is host:port of the storage, archiving is disabled when empty.
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
	Prefix    string
	// Queue is the number of frames waiting for upload.
	Queue         int
	UploadTimeout time.Duration
}

var defaultConfig = Config{
	Bucket:        "guard",
	Queue:         8,
	UploadTimeout: 30 * time.Second,
}

func init() {
	if val := os.Getenv("GUARD_ARCHIVE_ENDPOINT"); val != "" {
		defaultConfig.Endpoint = val
	}
	if val := os.Getenv("GUARD_ARCHIVE_ACCESS_KEY"); val != "" {
		defaultConfig.AccessKey = val
	}
	if val := os.Getenv("GUARD_ARCHIVE_SECRET_KEY"); val != "" {
		defaultConfig.SecretKey = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Endpoint, "archive-endpoint", defaultConfig.Endpoint, "S3 endpoint (host:port) for archiving pictures, empty to disable.")
	flag.StringVar(&defaultConfig.Bucket, "archive-bucket", defaultConfig.Bucket, "Archive bucket.")
	flag.StringVar(&defaultConfig.AccessKey, "archive-access-key", defaultConfig.AccessKey, "Archive access key.")
	flag.StringVar(&defaultConfig.SecretKey, "archive-secret-key", defaultConfig.SecretKey, "Archive secret key.")
	flag.BoolVar(&defaultConfig.Secure, "archive-secure", defaultConfig.Secure, "Use TLS for the archive endpoint.")
	flag.StringVar(&defaultConfig.Prefix, "archive-prefix", defaultConfig.Prefix, "Object key prefix.")
	flag.IntVar(&defaultConfig.Queue, "archive-queue", defaultConfig.Queue, "Maximum pictures waiting for upload.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Enabled tells whether an endpoint is configured.
func (c *Config) Enabled() bool {
	return c.Endpoint != ""
}

// Uploader stores an object.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// Bucket uploads to a bucket with minio.
type Bucket struct {
	Client *minio.Client
	Name   string
}

// NewBucket creates the minio client.
func (c *Config) NewBucket() (*Bucket, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Bucket{Client: client, Name: c.Bucket}, nil
}

// Ensure creates the bucket if it doesn't exist.
func (b *Bucket) Ensure(ctx context.Context) error {
	exists, err := b.Client.BucketExists(ctx, b.Name)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.Name, err)
	}
	if exists {
		return nil
	}
	glog.Infof("archive: creating bucket %s", b.Name)
	if err := b.Client.MakeBucket(ctx, b.Name, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.Name, err)
	}
	return nil
}

// Upload implements Uploader.
func (b *Bucket) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.Client.PutObject(ctx, b.Name, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// Observer is notified about archived frames.
type Observer interface {
	FrameArchived(err error)
	FrameDropped()
}

// Archiver uploads every new frame received in Guard mode.
type Archiver struct {
	Uploader      Uploader
	Store         *state.Store
	DeviceID      string
	Prefix        string
	UploadTimeout time.Duration
	Observer      Observer

	queue   chan state.Frame
	dropped atomic.Uint64
}

// NewArchiver creates an Archiver.
func NewArchiver(uploader Uploader, store *state.Store, deviceID string, queue int) *Archiver {
	if queue <= 0 {
		queue = 1
	}
	return &Archiver{
		Uploader:      uploader,
		Store:         store,
		DeviceID:      deviceID,
		UploadTimeout: defaultConfig.UploadTimeout,
		queue:         make(chan state.Frame, queue),
	}
}

// NewArchiver creates an Archiver using the config.
func (c *Config) NewArchiver(uploader Uploader, store *state.Store, deviceID string) *Archiver {
	a := NewArchiver(uploader, store, deviceID, c.Queue)
	a.Prefix = c.Prefix
	a.UploadTimeout = c.UploadTimeout
	return a
}

// Name implements Named.
func (a *Archiver) Name() string {
	return "archive"
}

// Key returns the object key of a frame.
func (a *Archiver) Key(f state.Frame) string {
	return fmt.Sprintf("%s%s/%d.jpg", a.Prefix, a.DeviceID, f.ReceivedAt.UnixNano())
}

// Dropped returns the number of frames dropped because the queue was full.
func (a *Archiver) Dropped() uint64 {
	return a.dropped.Load()
}

// Run implements Runnable.
func (a *Archiver) Run(ctx context.Context) error {
	sub := a.Store.Subscribe()
	defer sub.Close()
	lastSeq := a.Store.Snapshot().Frame.Seq
	return fx.NewRunnerWith(ctx).Go(
		fx.NamedRun("archive-watch", fx.RunFunc(func(ctx context.Context) error {
			return a.watch(ctx, sub, lastSeq)
		})),
		fx.NamedRun("archive-upload", fx.RunFunc(a.upload)),
	).Wait()
}

func (a *Archiver) watch(ctx context.Context, sub *state.Subscription, lastSeq uint64) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot := <-sub.C:
			frame := snapshot.Frame
			if !frame.Present || frame.Seq == lastSeq {
				continue
			}
			lastSeq = frame.Seq
			if snapshot.Mode != state.ModeGuard {
				continue
			}
			select {
			case a.queue <- frame:
			default:
				a.dropped.Add(1)
				glog.Warningf("archive: queue full, frame %d dropped", frame.Seq)
				if o := a.Observer; o != nil {
					o.FrameDropped()
				}
			}
		}
	}
}

func (a *Archiver) upload(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-a.queue:
			key := a.Key(frame)
			uploadCtx, cancel := context.WithTimeout(ctx, a.UploadTimeout)
			data := protocol.PictureBytes(frame.Payload)
			err := a.Uploader.Upload(uploadCtx, key, data, http.DetectContentType(data))
			cancel()
			if err != nil {
				glog.Errorf("archive: upload %s: %v", key, err)
			} else {
				glog.V(1).Infof("archive: uploaded %s", key)
			}
			if o := a.Observer; o != nil {
				o.FrameArchived(err)
			}
		}
	}
}
