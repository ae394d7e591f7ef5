package knowledge

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadStatements reads one statement per line. Blank lines and lines starting
// with '#' are skipped; surrounding whitespace is trimmed.
func ReadStatements(r io.Reader) ([]string, error) {
	var statements []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		statements = append(statements, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statements: %w", err)
	}
	return statements, nil
}
