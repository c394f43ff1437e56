// Package toolchain locates or installs the external binaries the engine
// shells out to: yt-dlp, ffmpeg and ffprobe.
package toolchain

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"vidgate/internal/config"
	"vidgate/internal/consts"
	"vidgate/internal/errs"

	"github.com/ulikunitz/xz"
)

const (
	platformLinux   = "linux"
	platformWindows = "windows"
	archARM64       = "arm64"

	// downloadTimeout is the HTTP client timeout for downloading binaries.
	downloadTimeout = 10 * time.Minute
	// filePermExecutable is the file permission for executable binaries.
	filePermExecutable = 0o755
)

// Platform represents the OS and architecture combination.
type Platform struct {
	OS   string
	Arch string
}

// String returns the platform string in format "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Manager resolves binary paths.
type Manager struct {
	log      *slog.Logger
	cfg      *config.Config
	platform Platform
	client   *http.Client

	mu       sync.RWMutex
	binPaths map[string]string // binary name -> resolved path
}

// New creates a new toolchain manager.
func New(log *slog.Logger, cfg *config.Config) *Manager {
	return &Manager{
		log: log.With(slog.String("package", "toolchain")),
		cfg: cfg,
		platform: Platform{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
		client: &http.Client{
			Timeout: downloadTimeout,
		},
		binPaths: make(map[string]string),
	}
}

// Start resolves every binary, either from PATH or by installing it into the bins directory.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.Toolchain.UseSystemBinaries {
		return m.SetSystemBinaries(ctx)
	}

	return m.InstallAll(ctx)
}

// Path returns the resolved path of a binary, or empty if it is unknown.
func (m *Manager) Path(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.binPaths[name]
}

// Ready reports whether the engine binary is resolved.
func (m *Manager) Ready() error {
	if m.Path(consts.BinYTdlp) == "" {
		return fmt.Errorf("%w: %s", errs.ErrBinaryNotFound, consts.BinYTdlp)
	}

	return nil
}

// SetSystemBinaries looks the binaries up in PATH. yt-dlp is required;
// a missing ffmpeg only disables merging and transcoding.
func (m *Manager) SetSystemBinaries(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, binary := range []string{consts.BinYTdlp, consts.BinFFmpeg, consts.BinFFprobe} {
		path, err := exec.LookPath(binary)
		if err != nil {
			if binary == consts.BinYTdlp {
				return fmt.Errorf("%w: %s not in PATH: %w", errs.ErrBinaryNotFound, binary, err)
			}

			m.log.WarnContext(ctx, "binary not found in PATH", slog.String("binary", binary))

			continue
		}

		m.binPaths[binary] = path
	}

	m.log.InfoContext(ctx, "system binaries resolved", slog.Any("binaries", m.binPaths))

	return nil
}

// InstallAll downloads missing binaries into the bins directory.
// Binaries that already exist there are reused as is.
func (m *Manager) InstallAll(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.Toolchain.BinsDir, filePermExecutable); err != nil {
		return fmt.Errorf("create bins directory: %w", err)
	}

	// ffmpeg archives also carry ffprobe
	for _, binary := range []string{consts.BinFFmpeg, consts.BinYTdlp} {
		if m.isBinaryExists(binary) {
			m.setBinaryPath(binary)

			if binary == consts.BinFFmpeg && m.isBinaryExists(consts.BinFFprobe) {
				m.setBinaryPath(consts.BinFFprobe)
			}

			m.log.DebugContext(ctx, "binary already exists", slog.String("binary", binary))

			continue
		}

		if err := m.downloadAndInstall(ctx, binary); err != nil {
			return fmt.Errorf("download and install %s: %w", binary, err)
		}
	}

	m.log.InfoContext(ctx, "all binaries are installed", slog.Any("binaries", m.binPaths))

	return nil
}

// BinaryPath returns where a binary lives inside the bins directory.
func (m *Manager) BinaryPath(name string) string {
	filename := name
	if m.platform.OS == platformWindows {
		filename += ".exe"
	}

	return filepath.Join(m.cfg.Toolchain.BinsDir, filename)
}

func (m *Manager) isBinaryExists(name string) bool {
	info, err := os.Stat(m.BinaryPath(name))

	return err == nil && info.Size() > 0
}

func (m *Manager) setBinaryPath(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.binPaths[name] = m.BinaryPath(name)
}

func (m *Manager) downloadAndInstall(ctx context.Context, name string) error {
	log := m.log.With(slog.String("binary", name))

	url := m.binaryURL(name)
	if url == "" {
		return fmt.Errorf("no download URL configured for %s on %s", name, m.platform)
	}

	log.InfoContext(ctx, "downloading binary", slog.String("url", url))

	installed, err := m.downloadDependency(ctx, url, name)
	if err != nil {
		return fmt.Errorf("download dependency: %w", err)
	}

	for _, path := range installed {
		if err := os.Chmod(path, filePermExecutable); err != nil {
			return fmt.Errorf("chmod: %w", err)
		}

		m.setBinaryPath(strings.TrimSuffix(filepath.Base(path), ".exe"))
	}

	log.InfoContext(ctx, "binary installed successfully", slog.Any("paths", installed))

	return nil
}

func (m *Manager) binaryURL(name string) string {
	cfg := m.cfg.Toolchain

	switch name {
	case consts.BinYTdlp:
		return m.selectURL(cfg.YTdlpLinuxARM64, cfg.YTdlpLinuxAMD64)
	case consts.BinFFmpeg, consts.BinFFprobe:
		return m.selectURL(cfg.FFmpegLinuxARM64, cfg.FFmpegLinuxAMD64)
	}

	return ""
}

func (m *Manager) selectURL(linuxARM64, linuxAMD64 string) string {
	if m.platform.OS == platformLinux && m.platform.Arch == archARM64 && linuxARM64 != "" {
		return linuxARM64
	}

	return linuxAMD64
}

// filesNeeded returns the archive members to extract for a binary.
func filesNeeded(name string) map[string]struct{} {
	if name == consts.BinFFmpeg {
		return map[string]struct{}{consts.BinFFmpeg: {}, consts.BinFFprobe: {}}
	}

	return map[string]struct{}{name: {}}
}

// downloadDependency fetches url into the bins directory and returns the installed paths.
func (m *Manager) downloadDependency(ctx context.Context, url, name string) ([]string, error) {
	binPath := m.BinaryPath(name)
	destDir := filepath.Dir(binPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(destDir, "download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()

	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	if !isArchive(url) {
		if err := os.Rename(tmpPath, binPath); err != nil {
			return nil, fmt.Errorf("rename: %w", err)
		}

		return []string{binPath}, nil
	}

	targets := filesNeeded(name)

	extracted, err := extractFiles(tmpPath, destDir, url, targets)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	return extracted, nil
}

func isArchive(url string) bool {
	return strings.HasSuffix(url, ".zip") ||
		strings.HasSuffix(url, ".tar.xz") ||
		strings.HasSuffix(url, ".tar.gz")
}

func extractFiles(archivePath, destDir, url string, targets map[string]struct{}) ([]string, error) {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return extractFromZip(archivePath, destDir, targets)
	case strings.HasSuffix(url, ".tar.xz"):
		return extractFromTarXZ(archivePath, destDir, targets)
	case strings.HasSuffix(url, ".tar.gz"):
		return extractFromTarGZ(archivePath, destDir, targets)
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedArchive, filepath.Base(url))
	}
}

func extractFromZip(zipPath, destDir string, targets map[string]struct{}) ([]string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	var extracted []string

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		filename := strings.TrimSuffix(file.FileInfo().Name(), ".exe")
		if _, ok := targets[filename]; !ok {
			continue
		}

		fileReader, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open file in zip: %w", err)
		}

		destPath := filepath.Join(destDir, file.FileInfo().Name())
		err = writeExecutable(destPath, fileReader)
		fileReader.Close()

		if err != nil {
			return nil, err
		}

		extracted = append(extracted, destPath)
		if len(extracted) == len(targets) {
			break
		}
	}

	if len(extracted) == 0 {
		return nil, fmt.Errorf("%w: no target files in zip archive", errs.ErrBinaryNotFound)
	}

	return extracted, nil
}

func extractFromTarXZ(tarXZPath, destDir string, targets map[string]struct{}) ([]string, error) {
	file, err := os.Open(tarXZPath)
	if err != nil {
		return nil, fmt.Errorf("open tar.xz: %w", err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("create xz reader: %w", err)
	}

	return extractTarSelected(xzReader, destDir, targets)
}

func extractFromTarGZ(tarGZPath, destDir string, targets map[string]struct{}) ([]string, error) {
	file, err := os.Open(tarGZPath)
	if err != nil {
		return nil, fmt.Errorf("open tar.gz: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzReader.Close()

	return extractTarSelected(gzReader, destDir, targets)
}

// extractTarSelected copies regular files whose base name is in targets.
// Archive directory structure is flattened.
func extractTarSelected(reader io.Reader, destDir string, targets map[string]struct{}) ([]string, error) {
	tarReader := tar.NewReader(reader)

	var extracted []string

	for len(extracted) < len(targets) {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		filename := filepath.Base(header.Name)
		if _, ok := targets[filename]; !ok {
			continue
		}

		destPath := filepath.Join(destDir, filename)
		if err := writeExecutable(destPath, tarReader); err != nil {
			return nil, err
		}

		extracted = append(extracted, destPath)
	}

	if len(extracted) == 0 {
		return nil, fmt.Errorf("%w: no target files in tar archive", errs.ErrBinaryNotFound)
	}

	return extracted, nil
}

func writeExecutable(destPath string, src io.Reader) error {
	outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermExecutable)
	if err != nil {
		return fmt.Errorf("create dest file: %w", err)
	}

	_, err = io.Copy(outFile, src)
	if closeErr := outFile.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("extract file: %w", err)
	}

	return nil
}
