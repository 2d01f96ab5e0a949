// Package backup writes and restores zstd-compressed tar archives of the
// database and config file. Each top-level directory in an archive is a
// section ("agentcrew-data", "agentcrew-config") restored into its own
// destination directory.
package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

const (
	sectionPrefix = "agentcrew-"
	SectionData   = sectionPrefix + "data"
	SectionConfig = sectionPrefix + "config"
)

// ErrExists is returned by Restore when a file would be replaced without
// overwrite.
var ErrExists = errors.New("file already exists")

// Stats summarises one archive operation.
type Stats struct {
	Files int
	Bytes int64
}

// Create snapshots the database with VACUUM INTO, so it is consistent while
// the gateway keeps writing, and archives it together with configPath when
// that file exists.
func Create(ctx context.Context, s *store.Store, dbName, configPath, outputPath string) (Stats, error) {
	var stats Stats

	tmpDir, err := os.MkdirTemp("", "agentcrew-backup-")
	if err != nil {
		return stats, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, dbName)
	if _, err := s.DB().ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return stats, fmt.Errorf("snapshot database: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return stats, fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return stats, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	if err := addFile(tw, SectionData, snapshot, &stats); err != nil {
		return stats, err
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := addFile(tw, SectionConfig, configPath, &stats); err != nil {
				return stats, err
			}
		} else {
			slog.Warn("config file not found, skipping", "path", configPath)
		}
	}

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return stats, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return stats, fmt.Errorf("close file: %w", err)
	}

	if info, err := os.Stat(outputPath); err == nil {
		stats.Bytes = info.Size()
	}
	return stats, nil
}

func addFile(tw *tar.Writer, section, src string, stats *Stats) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", src, err)
	}
	hdr.Name = path.Join(section, filepath.Base(src))

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write tar data: %w", err)
	}
	stats.Files++
	slog.Info("archived file", "section", section, "name", filepath.Base(src), "size", info.Size())
	return nil
}

// Restore extracts the archive at inputPath. dest maps section names to
// target directories; sections without a destination are skipped. Unless
// overwrite is set, nothing is written when any target file exists.
func Restore(inputPath string, dest map[string]string, overwrite bool) (Stats, error) {
	var stats Stats

	// Pre-scan: resolve every target before touching the filesystem
	targets, err := plan(inputPath, dest)
	if err != nil {
		return stats, err
	}
	if !overwrite {
		for _, target := range targets {
			if _, err := os.Stat(target); err == nil {
				return stats, fmt.Errorf("%w: %s, add --overwrite to replace it", ErrExists, target)
			}
		}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return stats, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read tar entry: %w", err)
		}
		target, ok := targets[hdr.Name]
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			n, err := writeFile(target, tr, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return stats, err
			}
			// A restored database must not be paired with a stale WAL.
			if sectionOf(hdr.Name) == SectionData {
				os.Remove(target + "-wal")
				os.Remove(target + "-shm")
			}
			stats.Files++
			stats.Bytes += n
			slog.Info("restored file", "path", target)
		}
	}
	return stats, nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", target, err)
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", target, err)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("write %s: %w", target, err)
	}
	return n, out.Close()
}

// plan maps archive entry names to filesystem targets, rejecting entries
// that would escape their destination directory.
func plan(inputPath string, dest map[string]string) (map[string]string, error) {
	targets := make(map[string]string)
	err := walk(inputPath, func(hdr *tar.Header) error {
		section, rel := splitSectionPath(hdr.Name)
		dir, ok := dest[section]
		if section == "" || !ok || rel == "./" {
			return nil
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if r, err := filepath.Rel(dir, target); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes %s", hdr.Name, dir)
		}
		targets[hdr.Name] = target
		return nil
	})
	return targets, err
}

// Sections reads tar headers to collect unique section names without
// extracting file data.
func Sections(inputPath string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	err := walk(inputPath, func(hdr *tar.Header) error {
		section, _ := splitSectionPath(hdr.Name)
		if section != "" && !seen[section] {
			seen[section] = true
			names = append(names, section)
		}
		return nil
	})
	return names, err
}

func walk(inputPath string, fn func(*tar.Header) error) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(hdr); err != nil {
			return err
		}
	}
}

func sectionOf(name string) string {
	section, _ := splitSectionPath(name)
	return section
}

// splitSectionPath splits "agentcrew-data/agentcrew.db" into
// ("agentcrew-data", "agentcrew.db"). Returns an empty section for names
// outside any section.
func splitSectionPath(name string) (section, relPath string) {
	// Clean leading slashes/dots
	name = strings.TrimLeft(name, "./")
	if name == "" {
		return "", ""
	}

	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		if strings.HasPrefix(name, sectionPrefix) {
			return name, "./"
		}
		return "", ""
	}

	section = name[:idx]
	relPath = name[idx+1:]
	if relPath == "" {
		relPath = "./"
	}

	if !strings.HasPrefix(section, sectionPrefix) {
		return "", ""
	}
	return section, relPath
}

// FormatSize renders a byte count for humans.
func FormatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
