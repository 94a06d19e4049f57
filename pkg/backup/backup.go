package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
	"github.com/evorbrain/evorbrain/pkg/transports/ssh"
)

const (
	filePrefix  = "evorbrain-"
	fileSuffix  = ".db"
	stampLayout = "20060102-150405"

	// entityBackup names snapshots in not-found errors.
	entityBackup domain.EntityType = "backup"

	destinationLocal  = "local"
	destinationRemote = "remote"
)

// namePattern matches snapshot file names. A second snapshot taken within
// the same second gets a numeric suffix.
var namePattern = regexp.MustCompile(`^evorbrain-(\d{8}-\d{6})(?:-(\d+))?\.db$`)

// Snapshotter writes a consistent copy of the live database.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

// Remote is the part of ssh.Transport used for off-site copies.
type Remote interface {
	Connect(ctx context.Context) error
	Disconnect() error
	UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) (*ssh.FileTransferResult, error)
	DownloadFile(ctx context.Context, remotePath string, localPath string) (*ssh.FileTransferResult, error)
	ListFiles(ctx context.Context, remoteDir string) ([]ssh.RemoteFile, error)
	RemoveFile(ctx context.Context, remotePath string) error
}

// Backup describes one snapshot file.
type Backup struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum,omitempty"`
	Location  string    `json:"location"`

	seq int
}

// Result reports what Create did.
type Result struct {
	Backup       Backup   `json:"backup"`
	Pruned       []string `json:"pruned,omitempty"`
	Uploaded     bool     `json:"uploaded"`
	RemotePath   string   `json:"remote_path,omitempty"`
	RemotePruned []string `json:"remote_pruned,omitempty"`
}

// Options configures a Manager. Dir is required.
type Options struct {
	Dir  string
	Keep int

	// Remote and RemoteDir enable uploads after each local snapshot.
	Remote    Remote
	RemoteDir string

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Events  *telemetry.EventPublisher

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Manager creates, lists, prunes and restores database snapshots.
type Manager struct {
	dir       string
	keep      int
	remote    Remote
	remoteDir string
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	events    *telemetry.EventPublisher
	now       func() time.Time
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if opts.Remote != nil && opts.RemoteDir == "" {
		return nil, fmt.Errorf("remote directory is required when a remote is configured")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		dir:       filepath.Clean(opts.Dir),
		keep:      opts.Keep,
		remote:    opts.Remote,
		remoteDir: opts.RemoteDir,
		logger:    opts.Logger.With().Str("component", "backup").Logger(),
		metrics:   opts.Metrics,
		events:    opts.Events,
		now:       now,
	}, nil
}

// NewFromConfig builds a Manager from the backup section, with the SFTP
// transport when a remote is configured. tel may be nil.
func NewFromConfig(cfg *config.Config, logger zerolog.Logger, tel *telemetry.Telemetry) (*Manager, error) {
	dir, err := cfg.BackupDir()
	if err != nil {
		return nil, err
	}

	opts := Options{
		Dir:    dir,
		Keep:   cfg.Backup.Keep,
		Logger: logger,
	}
	if tel != nil {
		opts.Metrics = tel.Metrics
		opts.Events = tel.Events
	}

	if rc := cfg.Backup.Remote; rc != nil {
		sshCfg := remoteSSHConfig(rc)
		client, err := ssh.NewSSHClient(sshCfg, logger)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid backup remote: %v", err))
		}
		opts.Remote = client
		opts.RemoteDir = rc.Dir
	}

	return NewManager(opts)
}

func remoteSSHConfig(rc *config.RemoteConfig) *ssh.Config {
	c := ssh.DefaultConfig(rc.Host, rc.User)
	if rc.Port > 0 {
		c.Port = rc.Port
	}
	if rc.KeyFile != "" {
		c.AuthMethod = ssh.AuthMethodKey
		c.PrivateKeyPath = rc.KeyFile
	} else {
		c.AuthMethod = ssh.AuthMethodPassword
		c.Password = rc.Password
	}
	if rc.KnownHosts != "" {
		c.KnownHostsPath = rc.KnownHosts
	}
	c.InsecureIgnoreHostKey = rc.InsecureIgnoreHostKey
	if rc.Timeout > 0 {
		c.ConnectionTimeout = rc.Timeout
	}
	return c
}

// Dir returns the local snapshot directory.
func (m *Manager) Dir() string {
	return m.dir
}

// HasRemote reports whether uploads are configured.
func (m *Manager) HasRemote() bool {
	return m.remote != nil
}

// Create writes a new snapshot, prunes old local snapshots to the keep
// count and uploads the snapshot when a remote is configured. A failed
// upload is returned as an error alongside the local result.
func (m *Manager) Create(ctx context.Context, store Snapshotter) (*Result, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		m.metrics.RecordBackup(destinationLocal, "failure")
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	name, err := m.nextName()
	if err != nil {
		m.metrics.RecordBackup(destinationLocal, "failure")
		return nil, err
	}
	dest := filepath.Join(m.dir, name)

	m.logger.Debug().Str("path", dest).Msg("writing snapshot")
	if err := store.Snapshot(ctx, dest); err != nil {
		_ = os.Remove(dest)
		m.metrics.RecordBackup(destinationLocal, "failure")
		return nil, domain.NewDatabaseError("snapshot", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		m.metrics.RecordBackup(destinationLocal, "failure")
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	checksum, err := ssh.ComputeLocalChecksum(dest)
	if err != nil {
		m.metrics.RecordBackup(destinationLocal, "failure")
		return nil, fmt.Errorf("failed to checksum snapshot: %w", err)
	}
	m.metrics.RecordBackup(destinationLocal, "success")

	stamp, seq, _ := parseName(name)
	result := &Result{
		Backup: Backup{
			Name:      name,
			Path:      dest,
			Size:      info.Size(),
			CreatedAt: stamp,
			Checksum:  checksum,
			Location:  destinationLocal,
			seq:       seq,
		},
	}

	m.logger.Info().
		Str("name", name).
		Int64("bytes", info.Size()).
		Str("sha256", checksum).
		Msg("snapshot written")

	m.publish(telemetry.ActionBackedUp, &result.Backup)

	if result.Pruned, err = m.Prune(ctx); err != nil {
		return result, err
	}

	if m.remote == nil {
		return result, nil
	}

	remotePath, pruned, err := m.upload(ctx, dest, name)
	if err != nil {
		m.metrics.RecordBackup(destinationRemote, "failure")
		return result, fmt.Errorf("snapshot %s kept locally, upload failed: %w", name, err)
	}
	m.metrics.RecordBackup(destinationRemote, "success")
	result.Uploaded = true
	result.RemotePath = remotePath
	result.RemotePruned = pruned

	return result, nil
}

func (m *Manager) upload(ctx context.Context, localPath, name string) (string, []string, error) {
	if err := m.remote.Connect(ctx); err != nil {
		return "", nil, err
	}
	defer func() {
		if err := m.remote.Disconnect(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to close backup remote")
		}
	}()

	remotePath := path.Join(m.remoteDir, name)
	res, err := m.remote.UploadFile(ctx, localPath, remotePath, 0o600)
	if err != nil {
		return "", nil, err
	}
	m.logger.Info().
		Str("remote", remotePath).
		Int64("bytes", res.BytesTransferred).
		Dur("duration", res.Duration).
		Msg("snapshot uploaded")

	files, err := m.remote.ListFiles(ctx, m.remoteDir)
	if err != nil {
		return remotePath, nil, err
	}
	var pruned []string
	for _, b := range m.excess(remoteBackups(files)) {
		if err := m.remote.RemoveFile(ctx, b.Path); err != nil {
			return remotePath, pruned, err
		}
		pruned = append(pruned, b.Name)
	}
	return remotePath, pruned, nil
}

// nextName returns an unused snapshot file name for the current time.
func (m *Manager) nextName() (string, error) {
	base := filePrefix + m.now().UTC().Format(stampLayout)
	name := base + fileSuffix
	for seq := 1; ; seq++ {
		_, err := os.Stat(filepath.Join(m.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check snapshot name: %w", err)
		}
		if seq > 99 {
			return "", fmt.Errorf("too many snapshots for %s", base)
		}
		name = base + "-" + strconv.Itoa(seq) + fileSuffix
	}
}

// List returns the local snapshots, newest first. A missing directory
// yields an empty list.
func (m *Manager) List(ctx context.Context) ([]Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Backup{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := make([]Backup, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		stamp, seq, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Backup{
			Name:      entry.Name(),
			Path:      filepath.Join(m.dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: stamp,
			Location:  destinationLocal,
			seq:       seq,
		})
	}
	sortNewestFirst(backups)
	return backups, nil
}

// ListRemote returns the snapshots on the remote, newest first.
func (m *Manager) ListRemote(ctx context.Context) ([]Backup, error) {
	if m.remote == nil {
		return nil, domain.NewBadRequestError("no backup remote is configured")
	}
	if err := m.remote.Connect(ctx); err != nil {
		return nil, err
	}
	defer m.remote.Disconnect()

	files, err := m.remote.ListFiles(ctx, m.remoteDir)
	if err != nil {
		return nil, err
	}
	return remoteBackups(files), nil
}

func remoteBackups(files []ssh.RemoteFile) []Backup {
	backups := make([]Backup, 0, len(files))
	for _, f := range files {
		stamp, seq, ok := parseName(f.Name)
		if !ok {
			continue
		}
		backups = append(backups, Backup{
			Name:      f.Name,
			Path:      f.Path,
			Size:      f.Size,
			CreatedAt: stamp,
			Location:  destinationRemote,
			seq:       seq,
		})
	}
	sortNewestFirst(backups)
	return backups
}

// Prune deletes local snapshots beyond the keep count, oldest first, and
// returns the removed names. A keep count below one disables pruning.
func (m *Manager) Prune(ctx context.Context) ([]string, error) {
	backups, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	var pruned []string
	for _, b := range m.excess(backups) {
		if err := os.Remove(b.Path); err != nil {
			return pruned, fmt.Errorf("failed to remove %s: %w", b.Name, err)
		}
		m.logger.Debug().Str("name", b.Name).Msg("snapshot pruned")
		pruned = append(pruned, b.Name)
	}
	return pruned, nil
}

// excess returns the snapshots past the keep count in a newest-first list.
func (m *Manager) excess(backups []Backup) []Backup {
	if m.keep < 1 || len(backups) <= m.keep {
		return nil
	}
	return backups[m.keep:]
}

// Restore replaces the database file at dbPath with the named snapshot.
// The store must be closed. The snapshot is verified first and the
// current database is kept as <dbPath>.pre-restore. With fromRemote the
// snapshot is downloaded into the backup directory before anything else.
func (m *Manager) Restore(ctx context.Context, name, dbPath string, fromRemote bool) (*Backup, error) {
	if _, _, ok := parseName(name); !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid backup name %q", name))
	}

	local := filepath.Join(m.dir, name)
	if fromRemote {
		if err := m.download(ctx, name, local); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(local)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewNotFoundError(entityBackup, name)
		}
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	if err := stores.VerifyFile(ctx, local); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("snapshot %s failed verification: %v", name, err))
	}

	if _, err := os.Stat(dbPath); err == nil {
		if err := keepCurrent(dbPath); err != nil {
			return nil, err
		}
	}

	staging := dbPath + ".restore"
	if err := copyFile(local, staging); err != nil {
		_ = os.Remove(staging)
		return nil, fmt.Errorf("failed to stage snapshot: %w", err)
	}
	if err := os.Rename(staging, dbPath); err != nil {
		_ = os.Remove(staging)
		return nil, fmt.Errorf("failed to replace database: %w", err)
	}
	// Stale WAL files would be replayed over the restored database.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove %s: %w", dbPath+suffix, err)
		}
	}

	stamp, seq, _ := parseName(name)
	restored := &Backup{
		Name:      name,
		Path:      local,
		Size:      info.Size(),
		CreatedAt: stamp,
		Location:  destinationLocal,
		seq:       seq,
	}
	m.logger.Info().Str("name", name).Str("database", dbPath).Msg("database restored")
	m.publish(telemetry.ActionRestored, restored)
	return restored, nil
}

func (m *Manager) publish(action string, b *Backup) {
	if err := m.events.PublishChange("backup", domain.EntityDatabase, action, b.Name, b); err != nil {
		m.logger.Warn().Err(err).Str("action", action).Msg("failed to publish backup event")
	}
}

func (m *Manager) download(ctx context.Context, name, local string) error {
	if m.remote == nil {
		return domain.NewBadRequestError("no backup remote is configured")
	}
	if err := m.remote.Connect(ctx); err != nil {
		return err
	}
	defer m.remote.Disconnect()

	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if _, err := m.remote.DownloadFile(ctx, path.Join(m.remoteDir, name), local); err != nil {
		return err
	}
	return nil
}

// parseName extracts the timestamp and sequence of a snapshot file name.
func parseName(name string) (time.Time, int, bool) {
	match := namePattern.FindStringSubmatch(name)
	if match == nil {
		return time.Time{}, 0, false
	}
	stamp, err := time.ParseInLocation(stampLayout, match[1], time.UTC)
	if err != nil {
		return time.Time{}, 0, false
	}
	seq := 0
	if match[2] != "" {
		seq, _ = strconv.Atoi(match[2])
	}
	return stamp, seq, true
}

func sortNewestFirst(backups []Backup) {
	sort.SliceStable(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].seq > backups[j].seq
	})
}

// keepCurrent copies the live database to dbPath.pre-restore. Committed
// transactions may still sit in the write-ahead log, so the -wal file is
// kept beside the copy under the name SQLite looks for when it is opened.
func keepCurrent(dbPath string) error {
	kept := dbPath + ".pre-restore"
	if err := copyFile(dbPath, kept); err != nil {
		return fmt.Errorf("failed to keep current database: %w", err)
	}
	// A shared-memory index is rebuilt from the log on open.
	if err := os.Remove(kept + "-shm"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", kept+"-shm", err)
	}
	if _, err := os.Stat(dbPath + "-wal"); err == nil {
		if err := copyFile(dbPath+"-wal", kept+"-wal"); err != nil {
			return fmt.Errorf("failed to keep write-ahead log: %w", err)
		}
		return nil
	}
	// A log left by an earlier restore belongs to a different database.
	if err := os.Remove(kept + "-wal"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", kept+"-wal", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
