package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Clock supplies the current time. Services take one so tests can freeze or move time.
type Clock func() time.Time

// UTCClock is the default Clock.
func UTCClock() time.Time { return time.Now().UTC() }

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd finds the project root, the closest parent directory holding a go.mod.
// go test changes the working directory to the package being tested.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			// not running from the source tree (e.g. a deployed binary)
			return wd
		}
		currDir = newDir
	}
}
