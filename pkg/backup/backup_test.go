package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/transports/ssh"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// fakeRemote keeps uploaded files in memory.
type fakeRemote struct {
	mu        sync.Mutex
	files     map[string][]byte
	connects  int
	connected bool
	failUp    error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: make(map[string][]byte)}
}

func (r *fakeRemote) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	r.connected = true
	return nil
}

func (r *fakeRemote) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	return nil
}

func (r *fakeRemote) UploadFile(ctx context.Context, localPath, remotePath string, mode uint32) (*ssh.FileTransferResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil, errors.New("not connected")
	}
	if r.failUp != nil {
		return nil, r.failUp
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, err
	}
	r.files[remotePath] = data
	return &ssh.FileTransferResult{BytesTransferred: int64(len(data))}, nil
}

func (r *fakeRemote) DownloadFile(ctx context.Context, remotePath, localPath string) (*ssh.FileTransferResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[remotePath]
	if !ok {
		return nil, fmt.Errorf("remote file %s: %w", remotePath, os.ErrNotExist)
	}
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		return nil, err
	}
	return &ssh.FileTransferResult{BytesTransferred: int64(len(data))}, nil
}

func (r *fakeRemote) ListFiles(ctx context.Context, remoteDir string) ([]ssh.RemoteFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var files []ssh.RemoteFile
	for p, data := range r.files {
		if path.Dir(p) != remoteDir {
			continue
		}
		files = append(files, ssh.RemoteFile{Name: path.Base(p), Path: p, Size: int64(len(data))})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (r *fakeRemote) RemoveFile(ctx context.Context, remotePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, remotePath)
	return nil
}

func (r *fakeRemote) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for p := range r.files {
		names = append(names, path.Base(p))
	}
	sort.Strings(names)
	return names
}

func setupTestStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// steppingClock returns a clock that advances one minute per call.
func steppingClock() func() time.Time {
	current := testNow
	return func() time.Time {
		now := current
		current = current.Add(time.Minute)
		return now
	}
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = filepath.Join(t.TempDir(), "backups")
	}
	if opts.Now == nil {
		opts.Now = steppingClock()
	}
	opts.Logger = zerolog.Nop()
	m, err := NewManager(opts)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestNewManager(t *testing.T) {
	if _, err := NewManager(Options{}); err == nil {
		t.Error("expected error without a directory")
	}
	if _, err := NewManager(Options{Dir: t.TempDir(), Remote: newFakeRemote()}); err == nil {
		t.Error("expected error for a remote without a directory")
	}
}

func TestCreate(t *testing.T) {
	store := setupTestStore(t)
	m := newTestManager(t, Options{Keep: 3})

	result, err := m.Create(context.Background(), store)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if result.Backup.Name != "evorbrain-20250615-120000.db" {
		t.Errorf("unexpected name %q", result.Backup.Name)
	}
	if !result.Backup.CreatedAt.Equal(testNow) {
		t.Errorf("expected created at %v, got %v", testNow, result.Backup.CreatedAt)
	}
	if result.Backup.Size == 0 {
		t.Error("expected a non-empty snapshot")
	}
	if len(result.Backup.Checksum) != 64 {
		t.Errorf("expected a SHA-256 checksum, got %q", result.Backup.Checksum)
	}
	if result.Uploaded {
		t.Error("nothing should be uploaded without a remote")
	}

	if err := stores.VerifyFile(context.Background(), result.Backup.Path); err != nil {
		t.Errorf("snapshot does not verify: %v", err)
	}

	info, err := os.Stat(m.Dir())
	if err != nil {
		t.Fatalf("backup dir missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("expected backup dir mode 0700, got %o", perm)
	}
}

func TestCreateSameSecond(t *testing.T) {
	store := setupTestStore(t)
	m := newTestManager(t, Options{Keep: 5, Now: func() time.Time { return testNow }})

	first, err := m.Create(context.Background(), store)
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	second, err := m.Create(context.Background(), store)
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}

	if first.Backup.Name == second.Backup.Name {
		t.Fatalf("expected distinct names, both %q", first.Backup.Name)
	}
	if second.Backup.Name != "evorbrain-20250615-120000-1.db" {
		t.Errorf("unexpected name %q", second.Backup.Name)
	}

	backups, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 2 || backups[0].Name != second.Backup.Name {
		t.Errorf("expected the suffixed snapshot first, got %+v", backups)
	}
}

func TestCreatePrunes(t *testing.T) {
	store := setupTestStore(t)
	m := newTestManager(t, Options{Keep: 2})
	ctx := context.Background()

	var names []string
	for i := 0; i < 4; i++ {
		result, err := m.Create(ctx, store)
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		names = append(names, result.Backup.Name)
		if i >= 2 && len(result.Pruned) != 1 {
			t.Errorf("Create %d: expected one pruned snapshot, got %v", i, result.Pruned)
		}
	}

	backups, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(backups))
	}
	if backups[0].Name != names[3] || backups[1].Name != names[2] {
		t.Errorf("expected the two newest snapshots, got %s, %s", backups[0].Name, backups[1].Name)
	}
}

func TestListIgnoresOtherFiles(t *testing.T) {
	m := newTestManager(t, Options{Keep: 2})

	backups, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("List on a missing dir failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected no snapshots, got %d", len(backups))
	}

	if err := os.MkdirAll(m.Dir(), 0o700); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	for _, name := range []string{"notes.txt", "evorbrain-latest.db", "evorbrain-20250101-000000.db.partial"} {
		if err := os.WriteFile(filepath.Join(m.Dir(), name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	backups, err = m.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected unrelated files to be ignored, got %+v", backups)
	}
}

func TestCreateUploads(t *testing.T) {
	store := setupTestStore(t)
	remote := newFakeRemote()
	m := newTestManager(t, Options{Keep: 2, Remote: remote, RemoteDir: "/srv/evorbrain"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := m.Create(ctx, store)
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		if !result.Uploaded {
			t.Errorf("Create %d: expected upload", i)
		}
		if want := "/srv/evorbrain/" + result.Backup.Name; result.RemotePath != want {
			t.Errorf("expected remote path %s, got %s", want, result.RemotePath)
		}
	}

	got := remote.names()
	want := []string{"evorbrain-20250615-120100.db", "evorbrain-20250615-120200.db"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected remote %v, got %v", want, got)
	}
	if remote.connected {
		t.Error("expected the remote to be disconnected after Create")
	}

	listed, err := m.ListRemote(ctx)
	if err != nil {
		t.Fatalf("ListRemote failed: %v", err)
	}
	if len(listed) != 2 || listed[0].Name != want[1] || listed[0].Location != "remote" {
		t.Errorf("unexpected remote listing %+v", listed)
	}
}

func TestCreateUploadFailureKeepsLocal(t *testing.T) {
	store := setupTestStore(t)
	remote := newFakeRemote()
	remote.failUp = errors.New("connection reset")
	m := newTestManager(t, Options{Keep: 2, Remote: remote, RemoteDir: "/srv/evorbrain"})

	result, err := m.Create(context.Background(), store)
	if err == nil {
		t.Fatal("expected the upload error")
	}
	if result == nil || result.Uploaded {
		t.Fatalf("expected a local-only result, got %+v", result)
	}
	if _, err := os.Stat(result.Backup.Path); err != nil {
		t.Errorf("local snapshot missing: %v", err)
	}
}

func TestListRemoteWithoutRemote(t *testing.T) {
	m := newTestManager(t, Options{})
	_, err := m.ListRemote(context.Background())
	if domain.KindOf(err) != domain.KindBadRequest {
		t.Errorf("expected bad request, got %v", err)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	source := setupTestStore(t)
	area := &domain.LifeArea{ID: "area-1", Name: "Health", CreatedAt: testNow, UpdatedAt: testNow}
	if err := source.CreateLifeArea(ctx, area); err != nil {
		t.Fatalf("failed to create life area: %v", err)
	}

	m := newTestManager(t, Options{Keep: 3})
	result, err := m.Create(ctx, source)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "evorbrain.db")
	if err := os.WriteFile(dbPath, []byte("old database"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(dbPath+"-wal", []byte("stale"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	restored, err := m.Restore(ctx, result.Backup.Name, dbPath, false)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Name != result.Backup.Name {
		t.Errorf("expected %s, got %s", result.Backup.Name, restored.Name)
	}

	if data, err := os.ReadFile(dbPath + ".pre-restore"); err != nil || string(data) != "old database" {
		t.Errorf("expected the previous database to be kept, got %q, %v", data, err)
	}
	if _, err := os.Stat(dbPath + "-wal"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the stale WAL to be removed, got %v", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to open restored database: %v", err)
	}
	defer store.Close()

	got, err := store.GetLifeArea(ctx, "area-1")
	if err != nil {
		t.Fatalf("restored database lacks the life area: %v", err)
	}
	if got.Name != "Health" {
		t.Errorf("expected name Health, got %s", got.Name)
	}
}

func TestRestoreKeepsWriteAheadLog(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "evorbrain.db")

	// The live store stays open so its last writes are still in the -wal.
	live, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := live.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := live.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	area := &domain.LifeArea{ID: "area-live", Name: "Finance", CreatedAt: testNow, UpdatedAt: testNow}
	if err := live.CreateLifeArea(ctx, area); err != nil {
		t.Fatalf("failed to create life area: %v", err)
	}
	if _, err := os.Stat(dbPath + "-wal"); err != nil {
		t.Fatalf("expected a write-ahead log next to the live database: %v", err)
	}

	// Left over from an earlier restore; must not survive.
	if err := os.WriteFile(dbPath+".pre-restore-shm", []byte("stale"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	m := newTestManager(t, Options{Keep: 3})
	result, err := m.Create(ctx, setupTestStore(t))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Restore(ctx, result.Backup.Name, dbPath, false); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if err := live.Close(); err != nil {
		t.Fatalf("failed to close live store: %v", err)
	}

	if _, err := os.Stat(dbPath + ".pre-restore-shm"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the stale shared-memory file to be removed, got %v", err)
	}

	kept, err := stores.NewSQLiteStore(stores.Config{Path: dbPath + ".pre-restore"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := kept.Init(ctx); err != nil {
		t.Fatalf("failed to open kept database: %v", err)
	}
	defer kept.Close()

	got, err := kept.GetLifeArea(ctx, "area-live")
	if err != nil {
		t.Fatalf("kept database lost its latest writes: %v", err)
	}
	if got.Name != "Finance" {
		t.Errorf("expected name Finance, got %s", got.Name)
	}
}

func TestKeepCurrentDropsForeignLog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "evorbrain.db")
	if err := os.WriteFile(dbPath, []byte("current"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(dbPath+".pre-restore-wal", []byte("older"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := keepCurrent(dbPath); err != nil {
		t.Fatalf("keepCurrent failed: %v", err)
	}
	if data, err := os.ReadFile(dbPath + ".pre-restore"); err != nil || string(data) != "current" {
		t.Errorf("expected the database to be copied, got %q, %v", data, err)
	}
	if _, err := os.Stat(dbPath + ".pre-restore-wal"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the earlier log to be removed, got %v", err)
	}
}

func TestRestoreFromRemote(t *testing.T) {
	ctx := context.Background()
	source := setupTestStore(t)
	remote := newFakeRemote()
	m := newTestManager(t, Options{Keep: 3, Remote: remote, RemoteDir: "/srv/evorbrain"})

	result, err := m.Create(ctx, source)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.Remove(result.Backup.Path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "evorbrain.db")
	if _, err := m.Restore(ctx, result.Backup.Name, dbPath, true); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if err := stores.VerifyFile(ctx, dbPath); err != nil {
		t.Errorf("restored database does not verify: %v", err)
	}
	if _, err := os.Stat(result.Backup.Path); err != nil {
		t.Errorf("expected the download to be kept locally: %v", err)
	}
}

func TestRestoreErrors(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, Options{Keep: 3})
	dbPath := filepath.Join(t.TempDir(), "evorbrain.db")

	if err := os.MkdirAll(m.Dir(), 0o700); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	corrupt := "evorbrain-20250101-000000.db"
	if err := os.WriteFile(filepath.Join(m.Dir(), corrupt), []byte("not a database"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	tests := []struct {
		name       string
		backup     string
		fromRemote bool
		kind       domain.ErrorKind
	}{
		{name: "path traversal", backup: "../evorbrain.db", kind: domain.KindValidation},
		{name: "unknown snapshot", backup: "evorbrain-20240101-000000.db", kind: domain.KindNotFound},
		{name: "corrupt snapshot", backup: corrupt, kind: domain.KindValidation},
		{name: "remote not configured", backup: corrupt, fromRemote: true, kind: domain.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Restore(ctx, tt.backup, dbPath, tt.fromRemote)
			if got := domain.KindOf(err); got != tt.kind {
				t.Errorf("expected %s, got %s (%v)", tt.kind, got, err)
			}
			if _, err := os.Stat(dbPath); !errors.Is(err, os.ErrNotExist) {
				t.Error("the database must not be touched on failure")
			}
		})
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name  string
		ok    bool
		stamp time.Time
		seq   int
	}{
		{name: "evorbrain-20250615-120000.db", ok: true, stamp: testNow},
		{name: "evorbrain-20250615-120000-3.db", ok: true, stamp: testNow, seq: 3},
		{name: "evorbrain-20251301-120000.db"},
		{name: "evorbrain-20250615.db"},
		{name: "other-20250615-120000.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp, seq, ok := parseName(tt.name)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if !stamp.Equal(tt.stamp) || seq != tt.seq {
				t.Errorf("expected %v/%d, got %v/%d", tt.stamp, tt.seq, stamp, seq)
			}
		})
	}
}
