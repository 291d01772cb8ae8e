package ssh

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
)

// Stager moves run material to and from the remote control point over SFTP.
// The project directory and inventory are pushed before the engine runs
// there; logs written remotely are fetched back into the local run directory.
type Stager struct {
	client *Client
}

// NewStager creates a stager bound to an SSH client.
func NewStager(client *Client) *Stager {
	return &Stager{client: client}
}

// sftpClient opens a new SFTP session.
func (s *Stager) sftpClient() (*sftp.Client, error) {
	sshClient, err := s.client.sshClient()
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

// PushDir recursively uploads a local directory to the remote host,
// preserving file modes. Remote parent directories are created as needed.
func (s *Stager) PushDir(ctx context.Context, localDir, remoteDir string) error {
	sftpClient, err := s.sftpClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(remoteDir); err != nil {
		return &TransportError{Op: "stage", Err: fmt.Errorf("failed to create %s: %w", remoteDir, err)}
	}

	err = filepath.WalkDir(localDir, func(localPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(localDir, localPath)
		if err != nil {
			return err
		}
		remotePath := path.Join(remoteDir, filepath.ToSlash(rel))

		if d.IsDir() {
			return sftpClient.MkdirAll(remotePath)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return s.putFile(sftpClient, localPath, remotePath, info.Mode())
	})
	if err != nil {
		return &TransportError{Op: "stage", Err: err, IsTemporary: true}
	}

	s.client.logger.
		WithField("local", localDir).
		WithField("remote", remoteDir).
		Debug("run material staged")
	return nil
}

// PushFile uploads a single file to the remote host.
func (s *Stager) PushFile(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sftpClient, err := s.sftpClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return &TransportError{Op: "stage", Err: err}
	}
	if err := s.putFile(sftpClient, localPath, remotePath, mode); err != nil {
		return &TransportError{Op: "stage", Err: err, IsTemporary: true}
	}
	return nil
}

// Fetch downloads a remote file into the local run directory.
func (s *Stager) Fetch(ctx context.Context, remotePath, localPath string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sftpClient, err := s.sftpClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	src, err := sftpClient.Open(remotePath)
	if err != nil {
		return &TransportError{Op: "fetch", Err: err, IsTemporary: true}
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return &TransportError{Op: "fetch", Err: err}
	}

	dst, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &TransportError{Op: "fetch", Err: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &TransportError{Op: "fetch", Err: err, IsTemporary: true}
	}
	return nil
}

// Cleanup removes staged material from the remote host. Best effort; a run
// whose bundle is already sealed does not fail on remote cleanup.
func (s *Stager) Cleanup(ctx context.Context, remoteDir string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sftpClient, err := s.sftpClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.RemoveAll(remoteDir); err != nil {
		return &TransportError{Op: "cleanup", Err: err, IsTemporary: true}
	}
	return nil
}

// putFile copies one local file to the remote path.
func (s *Stager) putFile(sftpClient *sftp.Client, localPath, remotePath string, mode os.FileMode) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return sftpClient.Chmod(remotePath, mode.Perm())
}
