package fsadapter

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/kcartwright/jirafs/internal/logging"
)

// Mount mounts the filesystem rooted at root at mountpoint. On a stale-mount
// error it tries platform-appropriate unmount commands and retries once.
func Mount(mountpoint string, root *Root, debug bool) (*fuse.Server, error) {
	opts := mountOptions(debug)

	server, err := fs.Mount(mountpoint, &RootNode{BaseNode: BaseNode{root: root}}, opts)
	if err == nil {
		return server, nil
	}
	if !looksLikeStaleMount(err) {
		return nil, err
	}

	logging.Warnf("mount %s reported a stale mount, attempting cleanup: %v", mountpoint, err)
	if cleanupErr := forceUnmount(mountpoint); cleanupErr != nil {
		logging.Warnf("stale mount cleanup failed for %s: %v", mountpoint, cleanupErr)
		return nil, err
	}

	return fs.Mount(mountpoint, &RootNode{BaseNode: BaseNode{root: root}}, opts)
}

func mountOptions(debug bool) *fs.Options {
	attrTimeout := entryTTL
	entryTimeout := entryTTL

	mountOpts := fuse.MountOptions{
		Name:    "jirafs",
		FsName:  "jirafs",
		Debug:   debug,
		Options: []string{"default_permissions"},
	}
	if runtime.GOOS == "darwin" {
		mountOpts.Options = append(mountOpts.Options, "noatime")
	}

	return &fs.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		MountOptions: mountOpts,
	}
}

func looksLikeStaleMount(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "exist") || strings.Contains(msg, "busy")
}

func forceUnmount(mountpoint string) error {
	var attempts [][]string
	if runtime.GOOS == "darwin" {
		attempts = [][]string{{"umount", mountpoint}}
	} else {
		attempts = [][]string{
			{"fusermount3", "-u", mountpoint},
			{"fusermount", "-u", mountpoint},
			{"umount", mountpoint},
		}
	}

	var lastErr error
	for _, args := range attempts {
		cmd := exec.Command(args[0], args[1:]...)
		if err := cmd.Run(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
