package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/spf13/afero"

	"evboard/internal/config"
)

// ErrNotFound is returned by Store.ReadArchive when no archive exists yet.
var ErrNotFound = errors.New("archive: not found")

// Store is the durable home of the archive snapshot and its audit log.
type Store interface {
	// ReadArchive returns the current snapshot or ErrNotFound.
	ReadArchive(ctx context.Context) ([]byte, error)
	// WriteArchive replaces the snapshot wholesale.
	WriteArchive(ctx context.Context, data []byte) error
	// AppendLog appends one line to the audit log.
	AppendLog(ctx context.Context, line string) error
	Name() string
}

// NewStoreFromConfig builds the store selected by cfg.Archive.Store.
func NewStoreFromConfig(cfg *config.Config) (Store, error) {
	switch cfg.Archive.Store {
	case "ftp":
		if cfg.FTP.Host == "" {
			return nil, errors.New("archive: ftp store selected but ftp.host is empty")
		}
		return NewFTPStore(cfg.FTP, cfg.Archive.RemotePath, cfg.Archive.LogPath), nil
	case "file":
		fs := afero.NewBasePathFs(afero.NewOsFs(), cfg.Archive.LocalDir)
		return NewFileStore(fs, cfg.Archive.RemotePath, cfg.Archive.LogPath), nil
	default:
		return nil, fmt.Errorf("archive: unknown store %q", cfg.Archive.Store)
	}
}

// FTPStore keeps the archive on a remote FTP server. Each operation opens
// its own connection.
type FTPStore struct {
	addr        string
	user        string
	password    string
	timeout     time.Duration
	archivePath string
	logPath     string
}

// NewFTPStore returns an FTP-backed store. Port 21 is assumed when addr has
// no port.
func NewFTPStore(cfg config.FTPConfig, archivePath, logPath string) *FTPStore {
	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr += ":21"
	}
	return &FTPStore{
		addr:        addr,
		user:        cfg.User,
		password:    cfg.Password,
		timeout:     cfg.Timeout,
		archivePath: archivePath,
		logPath:     logPath,
	}
}

func (s *FTPStore) Name() string { return "ftp" }

func (s *FTPStore) dial(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.addr, ftp.DialWithTimeout(s.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", s.addr, err)
	}
	if err := conn.Login(s.user, s.password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	return conn, nil
}

func (s *FTPStore) ReadArchive(ctx context.Context) ([]byte, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	resp, err := conn.Retr(s.archivePath)
	if err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ftp retr %s: %w", s.archivePath, err)
	}
	defer resp.Close()
	return io.ReadAll(resp)
}

func (s *FTPStore) WriteArchive(ctx context.Context, data []byte) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()
	if err := conn.Stor(s.archivePath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("ftp stor %s: %w", s.archivePath, err)
	}
	return nil
}

func (s *FTPStore) AppendLog(ctx context.Context, line string) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()
	if err := conn.Append(s.logPath, bytes.NewBufferString(line)); err != nil {
		return fmt.Errorf("ftp append %s: %w", s.logPath, err)
	}
	return nil
}

// FileStore keeps the archive on an afero filesystem (the local disk in
// production, memory in tests).
type FileStore struct {
	fs          afero.Fs
	archivePath string
	logPath     string
}

func NewFileStore(fs afero.Fs, archivePath, logPath string) *FileStore {
	return &FileStore{fs: fs, archivePath: archivePath, logPath: logPath}
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) ReadArchive(_ context.Context) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.archivePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FileStore) WriteArchive(_ context.Context, data []byte) error {
	if err := s.fs.MkdirAll(path.Dir(s.archivePath), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.archivePath, data, 0o644)
}

func (s *FileStore) AppendLog(_ context.Context, line string) error {
	if err := s.fs.MkdirAll(path.Dir(s.logPath), 0o755); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(s.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
