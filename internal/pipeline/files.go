package pipeline

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/DerMene/cassandra-loader/pkg/compression"
	"github.com/DerMene/cassandra-loader/pkg/errors"
)

// StdinName is the task name of a load reading standard input.
const StdinName = "stdin"

// Inputs enumerates the load inputs named by path: standard input, one
// file, or the regular files of a directory in name order, filtered by an
// optional glob pattern matched against the base name.
func Inputs(path, pattern string) ([]string, error) {
	if strings.EqualFold(path, StdinName) {
		return []string{StdinName}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot open input")
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	if pattern != "" {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "bad file pattern "+pattern)
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot list "+path)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, _ := filepath.Match(pattern, e.Name()); !ok {
				continue
			}
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, errors.Newf(errors.ErrorTypeFile, "no input files in %s", path)
	}
	return files, nil
}

// openInput opens a load input, decompressing by file extension.
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == StdinName {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path) //nolint:gosec // G304: inputs are chosen by the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot open input")
	}
	alg := compression.FromExtension(path)
	if alg == compression.None {
		return f, nil
	}
	r, err := compression.NewReader(f, alg)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot decompress "+path)
	}
	return &stackedReader{ReadCloser: r, file: f}, nil
}

type stackedReader struct {
	io.ReadCloser
	file *os.File
}

func (s *stackedReader) Close() error {
	err := s.ReadCloser.Close()
	if ferr := s.file.Close(); err == nil {
		err = ferr
	}
	return err
}

// lineReader yields lines without their terminator. Lines may be of any
// length.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next line; ok is false at end of input.
func (l *lineReader) Next() (line string, ok bool, err error) {
	s, err := l.r.ReadString('\n')
	if err == io.EOF {
		if s == "" {
			return "", false, nil
		}
		err = nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrorTypeFile, "read failed")
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, true, nil
}

// sideChannels are the per-input BADPARSE, BADINSERT and LOG files. The
// LOG and BADINSERT channels are also written from write completions, so
// every write goes through one mutex.
type sideChannels struct {
	mu        sync.Mutex
	badParse  *bufio.Writer
	badInsert *bufio.Writer
	log       *bufio.Writer
	files     []*os.File
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// BadParse returns the BADPARSE channel, nil when disabled.
func (s *sideChannels) BadParse() io.Writer { return s.locked(s.badParse) }

// BadInsert returns the BADINSERT channel, nil when disabled.
func (s *sideChannels) BadInsert() io.Writer { return s.locked(s.badInsert) }

// Log returns the LOG channel, nil when disabled.
func (s *sideChannels) Log() io.Writer { return s.locked(s.log) }

func (s *sideChannels) locked(w *bufio.Writer) io.Writer {
	if w == nil {
		return nil
	}
	return lockedWriter{mu: &s.mu, w: w}
}

// openSideChannels creates <dir>/<base>.BADPARSE, .BADINSERT and .LOG. With
// an empty dir every channel discards.
func openSideChannels(dir, name string) (*sideChannels, error) {
	sc := &sideChannels{}
	if dir == "" {
		return sc, nil
	}
	base := filepath.Base(name)
	open := func(suffix string) (*bufio.Writer, error) {
		f, err := os.Create(filepath.Join(dir, base+suffix))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot create "+base+suffix)
		}
		sc.files = append(sc.files, f)
		return bufio.NewWriter(f), nil
	}
	var err error
	if sc.badParse, err = open(".BADPARSE"); err != nil {
		sc.Close()
		return nil, err
	}
	if sc.badInsert, err = open(".BADINSERT"); err != nil {
		sc.Close()
		return nil, err
	}
	if sc.log, err = open(".LOG"); err != nil {
		sc.Close()
		return nil, err
	}
	return sc, nil
}

// Close flushes and closes every channel.
func (s *sideChannels) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, w := range []*bufio.Writer{s.badParse, s.badInsert, s.log} {
		if w == nil {
			continue
		}
		if err := w.Flush(); err != nil && first == nil {
			first = err
		}
	}
	for _, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.files = nil
	return first
}

// moveFile moves src into dir, keeping its base name. A rename across
// devices falls back to copy and remove.
func moveFile(src, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(src))
	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}

	in, err := os.Open(src) //nolint:gosec // G304: same input the task read
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "cannot move "+src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "cannot move "+src)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", errors.Wrap(err, errors.ErrorTypeFile, "cannot move "+src)
	}
	if err := out.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "cannot move "+src)
	}
	in.Close()
	if err := os.Remove(src); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "cannot remove "+src)
	}
	return dst, nil
}
