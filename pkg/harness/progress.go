package harness

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// progressLinePattern recovers the (agent, task_id) pair from a journal
// line so duplicates survive a restart.
var progressLinePattern = regexp.MustCompile(`\[([^\]]+)\] ([^\s:]+):`)

// ProgressLog is the append-only plain-text session journal. One line per
// committed session; repeat commits for the same (agent, task_id) pair
// are suppressed, mirroring the session store's idempotent upsert.
type ProgressLog struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewProgressLog opens (or creates) the journal at path and indexes the
// already-recorded (agent, task_id) pairs.
func NewProgressLog(path string, logger *slog.Logger) (*ProgressLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create progress log directory: %w", err)
		}
	}

	log := &ProgressLog{
		path:   path,
		logger: logger.With("component", "progress-log"),
		seen:   make(map[string]bool),
	}
	if err := log.index(); err != nil {
		return nil, err
	}
	return log, nil
}

func (p *ProgressLog) index() error {
	file, err := os.Open(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open progress log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// Skip past the timestamp bracket, then match "[agent] task-id:".
		line := scanner.Text()
		if idx := strings.Index(line, "] ["); idx >= 0 {
			line = line[idx+2:]
		}
		if m := progressLinePattern.FindStringSubmatch(line); m != nil {
			p.seen[m[1]+"\x00"+m[2]] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan progress log: %w", err)
	}
	return nil
}

// Append records one committed session. Returns false when the pair was
// already journaled and the line was suppressed.
func (p *ProgressLog) Append(agentName, taskID, status string, score float64, riskLevel, output string) bool {
	key := agentName + "\x00" + taskID

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[key] {
		return false
	}

	line := fmt.Sprintf("[%s] [%s] %s: %s | Score: %.2f | Risk: %s | %s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		agentName, taskID, status, score, riskLevel, headLine(output, 120))

	file, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		p.logger.Error("Could not open progress log for append", "error", err)
		return false
	}
	defer file.Close()
	if _, err := file.WriteString(line); err != nil {
		p.logger.Error("Could not append to progress log", "error", err)
		return false
	}

	p.seen[key] = true
	return true
}

// Tail returns the last n journal lines, oldest first.
func (p *ProgressLog) Tail(n int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// headLine flattens the output to a single truncated line.
func headLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
