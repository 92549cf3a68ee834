package store

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"github.com/chzchzchz/sniffrx/sniffer"
)

// FileSink appends one formatted line per message to a file.
type FileSink struct {
	f   *os.File
	w   *bufio.Writer
	fmt sniffer.Formatter
	mu  sync.Mutex
}

func OpenFileSink(path string, f sniffer.Formatter) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	fout, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: fout, w: bufio.NewWriter(fout), fmt: f}, nil
}

func (s *FileSink) WriteMessage(m sniffer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(s.fmt.Format(m) + "\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
