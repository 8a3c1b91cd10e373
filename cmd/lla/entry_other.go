//go:build !linux

package main

import (
	"io/fs"

	"github.com/llakit/lla/protocol"
)

// entryMetadata converts stat results into the wire metadata plugins see.
// Ownership and access times are only populated on linux.
func entryMetadata(info fs.FileInfo) protocol.EntryMetadata {
	return protocol.EntryMetadata{
		Size:        uint64(info.Size()),
		Modified:    uint64(info.ModTime().Unix()),
		IsDir:       info.IsDir(),
		IsFile:      info.Mode().IsRegular(),
		IsSymlink:   info.Mode()&fs.ModeSymlink != 0,
		Permissions: uint32(info.Mode().Perm()),
	}
}
