package ssh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/sftp"
)

// partialSuffix marks a file that is still being written.
const partialSuffix = ".partial"

// createSFTPClient creates a new SFTP client.
func (c *SSHClient) createSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}

	return sftpClient, nil
}

// UploadFile uploads a single file to the remote host via SFTP.
func (c *SSHClient) UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) (*FileTransferResult, error) {
	startTime := time.Now()

	c.logger.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Msg("uploading file")

	localFile, err := os.Open(localPath)
	if err != nil {
		return nil, &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to open local file: %w", err),
		}
	}
	defer localFile.Close()

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	// SFTP paths always use forward slashes.
	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return nil, &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	partial := remotePath + partialSuffix
	remoteFile, err := sftpClient.Create(partial)
	if err != nil {
		return nil, &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}

	hasher := sha256.New()
	written, err := copyWithContext(ctx, io.MultiWriter(remoteFile, hasher), localFile)
	if closeErr := remoteFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = sftpClient.Remove(partial)
		return nil, &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to copy file: %w", err),
			IsTemporary: true,
		}
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	remoteSum, err := checksumRemote(ctx, sftpClient, partial)
	if err != nil {
		_ = sftpClient.Remove(partial)
		return nil, err
	}
	if remoteSum != checksum {
		_ = sftpClient.Remove(partial)
		return nil, &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("checksum mismatch: local %s, remote %s", checksum, remoteSum),
			IsTemporary: true,
		}
	}

	if mode > 0 {
		if err := sftpClient.Chmod(partial, os.FileMode(mode)); err != nil {
			c.logger.Warn().Err(err).Msg("failed to set file permissions")
		}
	}

	if err := sftpClient.PosixRename(partial, remotePath); err != nil {
		// Servers without the posix-rename extension refuse to overwrite.
		_ = sftpClient.Remove(remotePath)
		if err := sftpClient.Rename(partial, remotePath); err != nil {
			_ = sftpClient.Remove(partial)
			return nil, &TransportError{
				Op:  "upload",
				Err: fmt.Errorf("failed to rename remote file: %w", err),
			}
		}
	}

	result := transferResult(startTime, written, checksum)
	c.logger.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", result.Duration).
		Msg("file uploaded")

	return result, nil
}

// DownloadFile downloads a single file from the remote host via SFTP.
func (c *SSHClient) DownloadFile(ctx context.Context, remotePath string, localPath string) (*FileTransferResult, error) {
	startTime := time.Now()

	c.logger.Debug().
		Str("remote", remotePath).
		Str("local", localPath).
		Msg("downloading file")

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return nil, &TransportError{
			Op:  "download",
			Err: fmt.Errorf("failed to open remote file: %w", err),
		}
	}
	defer remoteFile.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o700); err != nil {
		return nil, &TransportError{
			Op:  "download",
			Err: fmt.Errorf("failed to create local directory: %w", err),
		}
	}

	partial := localPath + partialSuffix
	localFile, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, &TransportError{
			Op:  "download",
			Err: fmt.Errorf("failed to create local file: %w", err),
		}
	}

	hasher := sha256.New()
	written, err := copyWithContext(ctx, io.MultiWriter(localFile, hasher), remoteFile)
	if syncErr := localFile.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := localFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(partial)
		return nil, &TransportError{
			Op:          "download",
			Err:         fmt.Errorf("failed to copy file: %w", err),
			IsTemporary: true,
		}
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	localSum, err := ComputeLocalChecksum(partial)
	if err != nil || localSum != checksum {
		_ = os.Remove(partial)
		if err == nil {
			err = fmt.Errorf("checksum mismatch: received %s, written %s", checksum, localSum)
		}
		return nil, &TransportError{
			Op:          "download",
			Err:         err,
			IsTemporary: true,
		}
	}

	if err := os.Rename(partial, localPath); err != nil {
		_ = os.Remove(partial)
		return nil, &TransportError{
			Op:  "download",
			Err: fmt.Errorf("failed to move downloaded file: %w", err),
		}
	}

	result := transferResult(startTime, written, checksum)
	c.logger.Info().
		Str("remote", remotePath).
		Str("local", localPath).
		Int64("bytes", written).
		Dur("duration", result.Duration).
		Msg("file downloaded")

	return result, nil
}

// ListFiles lists the regular files of a remote directory.
func (c *SSHClient) ListFiles(ctx context.Context, remoteDir string) ([]RemoteFile, error) {
	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	entries, err := sftpClient.ReadDir(remoteDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []RemoteFile{}, nil
		}
		return nil, &TransportError{
			Op:          "list",
			Err:         fmt.Errorf("failed to read remote directory: %w", err),
			IsTemporary: true,
		}
	}

	files := make([]RemoteFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}
		files = append(files, RemoteFile{
			Name:    entry.Name(),
			Path:    path.Join(remoteDir, entry.Name()),
			Size:    entry.Size(),
			ModTime: entry.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return files, nil
}

// RemoveFile deletes a remote file.
func (c *SSHClient) RemoveFile(ctx context.Context, remotePath string) error {
	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.Remove(remotePath); err != nil {
		return &TransportError{
			Op:  "remove",
			Err: fmt.Errorf("failed to remove %s: %w", remotePath, err),
		}
	}

	c.logger.Debug().Str("remote", remotePath).Msg("file removed")
	return nil
}

// ComputeChecksum calculates the SHA-256 of a remote file by streaming it.
func (c *SSHClient) ComputeChecksum(ctx context.Context, remotePath string) (string, error) {
	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return "", err
	}
	defer sftpClient.Close()

	return checksumRemote(ctx, sftpClient, remotePath)
}

func checksumRemote(ctx context.Context, client *sftp.Client, remotePath string) (string, error) {
	file, err := client.Open(remotePath)
	if err != nil {
		return "", &TransportError{
			Op:  "checksum",
			Err: fmt.Errorf("failed to open remote file: %w", err),
		}
	}
	defer file.Close()

	return hashReader(ctx, file, "checksum")
}

// ComputeLocalChecksum calculates the SHA-256 of a local file.
func ComputeLocalChecksum(localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return hashReader(context.Background(), file, "checksum")
}

func hashReader(ctx context.Context, r io.Reader, op string) (string, error) {
	h := sha256.New()
	if _, err := copyWithContext(ctx, h, r); err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func transferResult(startTime time.Time, written int64, checksum string) *FileTransferResult {
	finishedAt := time.Now()
	return &FileTransferResult{
		BytesTransferred: written,
		Duration:         finishedAt.Sub(startTime),
		Checksum:         checksum,
		StartedAt:        startTime,
		FinishedAt:       finishedAt,
	}
}

// copyWithContext copies data from src to dst while respecting context cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, err := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if err != nil {
				return written, err
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
