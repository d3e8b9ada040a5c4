package subjects

import (
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// ownerNames returns the user and group names owning path. Numeric ids are
// returned when no name is known for them.
func ownerNames(path string) (string, string, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return "", "", &os.PathError{Op: "lstat", Path: path, Err: err}
	}

	username := strconv.FormatUint(uint64(st.Uid), 10)
	if u, err := user.LookupId(username); err == nil {
		username = u.Username
	}
	groupname := strconv.FormatUint(uint64(st.Gid), 10)
	if g, err := user.LookupGroupId(groupname); err == nil {
		groupname = g.Name
	}
	return username, groupname, nil
}
