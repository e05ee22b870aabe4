package utils

import (
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type ExtractionLogger struct {
	file       *os.File
	logger     *log.Logger
	multiWrite io.Writer
	debug      bool
}

// NewExtractionLogger logs to stdout and, when logsDir is set, to
// logs/<host>/extract_<host>_<timestamp>.log.
func NewExtractionLogger(logsDir, sitemapURL string, debug bool) (*ExtractionLogger, error) {
	if logsDir == "" {
		return NewWriterLogger(os.Stdout, debug), nil
	}

	host := sanitizeHost(sitemapURL)

	// Create host directory inside logs
	hostDir := filepath.Join(logsDir, host)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(hostDir, fmt.Sprintf("extract_%s_%s.log", host, timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	multiWrite := io.MultiWriter(os.Stdout, file)
	return &ExtractionLogger{
		file:       file,
		logger:     log.New(multiWrite, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		multiWrite: multiWrite,
		debug:      debug,
	}, nil
}

// NewWriterLogger logs to w only.
func NewWriterLogger(w io.Writer, debug bool) *ExtractionLogger {
	return &ExtractionLogger{
		logger:     log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		multiWrite: w,
		debug:      debug,
	}
}

func (el *ExtractionLogger) LogInfo(format string, v ...interface{}) {
	el.log("INFO", format, v...)
}

func (el *ExtractionLogger) LogError(format string, v ...interface{}) {
	el.log("ERROR", format, v...)
}

func (el *ExtractionLogger) LogDebug(format string, v ...interface{}) {
	if !el.debug {
		return
	}
	el.log("DEBUG", format, v...)
}

func (el *ExtractionLogger) log(level string, format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	el.logger.Printf("[%s] %s", level, message)
}

// Path returns the log file path, or "" when logging to a writer only.
func (el *ExtractionLogger) Path() string {
	if el.file == nil {
		return ""
	}
	return el.file.Name()
}

func (el *ExtractionLogger) Close() error {
	if el.file == nil {
		return nil
	}
	return el.file.Close()
}

// sanitizeHost turns a sitemap URL into a file-system safe directory name.
func sanitizeHost(rawURL string) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		name = u.Host
	}
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "unknown"
	}
	return name
}
