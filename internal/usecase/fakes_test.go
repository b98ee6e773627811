package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/semmidev/obx/internal/domain"
)

// testLogger records formatted messages per level.
type testLogger struct {
	mu       sync.Mutex
	infos    []string
	warnings []string
	errors   []string
}

func (l *testLogger) Debugf(string, ...interface{}) {}

func (l *testLogger) Infof(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(template, args...))
}

func (l *testLogger) Warnf(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(template, args...))
}

func (l *testLogger) Errorf(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(template, args...))
}

type fakeConnection struct {
	pingErr error
	dump    func(ctx context.Context, w io.Writer) error
	pings   int
}

func (f *fakeConnection) GetName() string { return "prod" }

func (f *fakeConnection) Ping(ctx context.Context) error {
	f.pings++
	return f.pingErr
}

func (f *fakeConnection) Dump(ctx context.Context, w io.Writer) error {
	if f.dump == nil {
		_, err := io.WriteString(w, "-- PostgreSQL database dump\n")
		return err
	}
	return f.dump(ctx, w)
}

type fakeLocator struct {
	path string
	err  error
}

func (f fakeLocator) Locate(database, override string) (string, error) {
	return f.path, f.err
}

type recordingObserver struct {
	stages []domain.Stage
	files  []string
	onFile func(relPath string)
}

func (o *recordingObserver) StageChanged(stage domain.Stage) {
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) FileAdded(relPath string, size int64) {
	o.files = append(o.files, relPath)
	if o.onFile != nil {
		o.onFile(relPath)
	}
}

type fakeNotifier struct {
	successes []domain.BackupArtifact
	failures  []error
}

func (n *fakeNotifier) NotifySuccess(ctx context.Context, artifact domain.BackupArtifact) error {
	n.successes = append(n.successes, artifact)
	return nil
}

func (n *fakeNotifier) NotifyFailure(ctx context.Context, database string, err error) error {
	n.failures = append(n.failures, err)
	return nil
}

// limitedStore fails partial writes once limit bytes have been written.
type limitedStore struct {
	OutputStore
	limit       int64
	writableErr error
}

func (s *limitedStore) CheckWritable() error {
	if s.writableErr != nil {
		return s.writableErr
	}
	return s.OutputStore.CheckWritable()
}

func (s *limitedStore) CreatePartial(name string) (domain.PartialFile, error) {
	p, err := s.OutputStore.CreatePartial(name)
	if err != nil {
		return nil, err
	}
	if s.limit <= 0 {
		return p, nil
	}
	return &limitedPartial{PartialFile: p, remaining: s.limit}, nil
}

type limitedPartial struct {
	domain.PartialFile
	remaining int64
}

var errDiskFull = errors.New("no space left on device")

func (p *limitedPartial) Write(b []byte) (int, error) {
	if int64(len(b)) > p.remaining {
		n, _ := p.PartialFile.Write(b[:p.remaining])
		p.remaining = 0
		return n, errDiskFull
	}
	p.remaining -= int64(len(b))
	return p.PartialFile.Write(b)
}

type fakeTableStore struct {
	text      string
	readErr   error
	commitErr error
	commits   []string
}

func (s *fakeTableStore) Read(ctx context.Context) (string, error) {
	return s.text, s.readErr
}

func (s *fakeTableStore) Commit(ctx context.Context, text string) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits = append(s.commits, text)
	s.text = text
	return nil
}

type fakeStorage struct {
	files     []string
	deleted   []string
	deleteErr map[string]error
}

func (s *fakeStorage) List(ctx context.Context) ([]string, error) {
	return s.files, nil
}

func (s *fakeStorage) Delete(ctx context.Context, name string) error {
	if err := s.deleteErr[name]; err != nil {
		return err
	}
	s.deleted = append(s.deleted, name)
	return nil
}
