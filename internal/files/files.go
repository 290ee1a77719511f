// Package files implements generic file tools missing from the standard library.
package files

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Exists returns true if file or directory exists.
func Exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// IsDir returns true if filePath exists and is a directory.
func IsDir(filePath string) bool {
	info, err := os.Stat(filePath)
	return err == nil && info.IsDir()
}

// ReplaceTildeInDir by the user's home directory. Returns dir (cleaned) if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user (e.g: `~unknown/...`)
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 {
		return dir, nil
	}
	if dir[0] != '~' {
		return filepath.Clean(dir), nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		sepIdx := strings.IndexRune(dir, '/')
		if sepIdx == -1 {
			userName = dir[1:]
		} else {
			userName = dir[1:sepIdx]
		}
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return dir, errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return filepath.Join(usr.HomeDir, dir[1+len(userName):]), nil
}
