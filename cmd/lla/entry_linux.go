//go:build linux

package main

import (
	"io/fs"
	"syscall"

	"github.com/llakit/lla/protocol"
)

// entryMetadata converts stat results into the wire metadata plugins see.
// Created is best-effort: unix exposes ctime, not birth time.
func entryMetadata(info fs.FileInfo) protocol.EntryMetadata {
	md := protocol.EntryMetadata{
		Size:        uint64(info.Size()),
		Modified:    uint64(info.ModTime().Unix()),
		IsDir:       info.IsDir(),
		IsFile:      info.Mode().IsRegular(),
		IsSymlink:   info.Mode()&fs.ModeSymlink != 0,
		Permissions: uint32(info.Mode().Perm()),
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		md.Accessed = uint64(st.Atim.Sec)
		md.Created = uint64(st.Ctim.Sec)
		md.UID = st.Uid
		md.GID = st.Gid
	}
	return md
}
