package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bcgov/ago-group-sync/tools"
	"gopkg.in/yaml.v3"
)

// WriteReport writes usernames as a YAML list. When path is an existing
// directory the file is named users_<group>_<unix-ms>.yml inside it.
// It returns the path written.
func WriteReport(path, groupID string, usernames []string, now time.Time) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		name := fmt.Sprintf("users_%s_%d.yml", tools.Slugify(groupID), now.UnixMilli())
		path = filepath.Join(path, name)
	}

	if usernames == nil {
		usernames = []string{}
	}
	data, err := yaml.Marshal(usernames)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}
