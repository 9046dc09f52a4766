package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// HostID returns the anonymous host identifier for this machine.
//
// The identifier is generated on first use and persisted to host-id in the
// store's base directory, so offline/anonymous manifest IDs stay stable
// across sessions.
//
// Returns:
//   - string: The host UUID
//   - error: Any error that occurred reading or creating the file
func (s *Store) HostID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, "host-id")
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read host id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write host id: %w", err)
	}
	return id, nil
}
