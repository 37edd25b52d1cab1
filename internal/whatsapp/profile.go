package whatsapp

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const profileExt = ".db"

// Profile is one auth profile file holding a user's linked device keys.
type Profile struct {
	Path      string
	UserID    string
	CreatedAt time.Time
	ModTime   time.Time
}

// ProfilePath returns the time-suffixed profile path for a new session.
func ProfilePath(dir, userID string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", userID, now.UnixMilli(), profileExt))
}

func parseProfileName(name string) (userID string, created time.Time, ok bool) {
	if !strings.HasSuffix(name, profileExt) {
		return "", time.Time{}, false
	}
	base := strings.TrimSuffix(name, profileExt)
	idx := strings.LastIndex(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(base[idx+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return base[:idx], time.UnixMilli(ms), true
}

// ListProfiles returns every auth profile in dir, newest first per creation time.
// A missing directory yields no profiles.
func ListProfiles(dir string) ([]Profile, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile dir: %w", err)
	}

	var profiles []Profile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		userID, created, ok := parseProfileName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		profiles = append(profiles, Profile{
			Path:      filepath.Join(dir, e.Name()),
			UserID:    userID,
			CreatedAt: created,
			ModTime:   info.ModTime(),
		})
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].CreatedAt.After(profiles[j].CreatedAt)
	})
	return profiles, nil
}

// LatestProfile returns the newest profile of a user, or nil.
func LatestProfile(dir, userID string) (*Profile, error) {
	profiles, err := ListProfiles(dir)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].UserID == userID {
			return &profiles[i], nil
		}
	}
	return nil, nil
}

// RemoveProfile deletes a profile along with its sqlite sidecar files.
func RemoveProfile(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
