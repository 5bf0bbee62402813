// Package codepack builds and uploads the source bundle that remote jobs
// download before running a task. Packaging happens at most once per
// executor lifetime: the first submission pays for the tar and upload and
// every later submission reuses the cached reference.
package codepack

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ShayCichocki/regatta/internal/scratch"
)

// DefaultIncludes are the patterns bundled when the configuration enables
// code packaging without an explicit include list.
var DefaultIncludes = []string{"**/*.go", "go.mod", "go.sum"}

// Packager lazily builds and uploads a code bundle. Safe for concurrent
// first calls: a single caller performs the upload, the rest wait for the
// same result.
type Packager struct {
	scratch  *scratch.Scratch
	workDir  string
	includes []string

	once sync.Once
	ref  string
	err  error
}

// New creates a Packager bundling files under workDir that match the
// include patterns. An empty includes slice uses DefaultIncludes.
func New(s *scratch.Scratch, workDir string, includes []string) *Packager {
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	return &Packager{scratch: s, workDir: workDir, includes: includes}
}

// Ensure returns the scratch URI of the uploaded bundle, building and
// uploading it on the first call only.
func (p *Packager) Ensure(ctx context.Context) (string, error) {
	p.once.Do(func() {
		p.ref, p.err = p.packageCode(ctx)
	})
	return p.ref, p.err
}

// packageCode tars the matched files, names the bundle by content hash, and
// uploads it to the scratch code area.
func (p *Packager) packageCode(ctx context.Context) (string, error) {
	files, err := p.findFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no files matched code package includes %v", p.includes)
	}

	data, err := createTar(p.workDir, files)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	uri := p.scratch.CodePath(fmt.Sprintf("%x.tar.gz", sum))
	if err := p.scratch.Store().Put(ctx, uri, data); err != nil {
		return "", fmt.Errorf("upload code bundle: %w", err)
	}
	return uri, nil
}

// findFiles walks the work dir and returns relative paths matching the
// include patterns, sorted for a deterministic bundle hash.
func (p *Packager) findFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(p.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			// Hidden and vendored trees never ship to remote jobs.
			if path != p.workDir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(p.workDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range p.includes {
			if matchPattern(pattern, rel) {
				files = append(files, rel)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan code files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// matchPattern matches a slash-separated relative path against an include
// pattern. A leading "**/" matches the file name at any depth; other
// patterns use path.Match semantics against the whole relative path.
func matchPattern(pattern, rel string) bool {
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		ok, _ := filepath.Match(rest, filepath.Base(rel))
		return ok
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}

// createTar produces a gzipped tar of the given files relative to workDir.
func createTar(workDir string, files []string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, rel := range files {
		full := filepath.Join(workDir, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", rel, err)
		}
		hdr := &tar.Header{
			Name: rel,
			Mode: int64(info.Mode().Perm()),
			Size: info.Size(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write tar header %s: %w", rel, err)
		}
		f, err := os.Open(full)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", rel, err)
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return nil, fmt.Errorf("write tar entry %s: %w", rel, err)
		}
		f.Close()
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractTar unpacks a gzipped code bundle into destDir. Used by the remote
// entrypoint before loading task code.
func ExtractTar(data []byte, destDir string) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		rel := filepath.FromSlash(hdr.Name)
		if strings.Contains(rel, "..") {
			return fmt.Errorf("unsafe tar entry %q", hdr.Name)
		}
		dest := filepath.Join(destDir, rel)
		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return fmt.Errorf("create dir %s: %w", rel, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("create dir for %s: %w", rel, err)
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return fmt.Errorf("create %s: %w", rel, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return fmt.Errorf("extract %s: %w", rel, err)
		}
		f.Close()
	}
}
