package util

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes logs to a writer, typically stderr
type ConsoleOutput struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewConsoleOutput creates a new console output
func NewConsoleOutput(writer io.Writer) Output {
	return &ConsoleOutput{writer: writer}
}

// Write writes a log entry to the console
func (c *ConsoleOutput) Write(entry LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	timestamp := entry.Timestamp.Format("2006/01/02 15:04:05")
	_, err := fmt.Fprintf(c.writer, "%s [%s] %s\n", timestamp, entry.Level, entry.Message)
	return err
}

// Close closes the console output
func (c *ConsoleOutput) Close() error {
	return nil
}

// FileOutput appends logs to a file
type FileOutput struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileOutput creates a new file output, creating the file if needed
func NewFileOutput(path string) (Output, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileOutput{file: file}, nil
}

// Write writes a log entry to the file
func (f *FileOutput) Write(entry LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	timestamp := entry.Timestamp.Format("2006/01/02 15:04:05")
	_, err := fmt.Fprintf(f.file, "%s [%s] %s\n", timestamp, entry.Level, entry.Message)
	return err
}

// Close closes the file
func (f *FileOutput) Close() error {
	return f.file.Close()
}
