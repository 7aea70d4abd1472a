// Package fuseadapter mounts a filesystem.Facade as a real FUSE mount point
// using go-fuse/v2, so the façade's virtual namespace is reachable through
// ordinary POSIX system calls (ls, cat, cp, ...). The adapter follows
// go-fuse's Inode-per-entry pattern: each namespace entry becomes a node
// whose lookup/readdir/getattr/open callbacks delegate to the façade,
// with a MountManager wrapping fuse.Server lifecycle. Linux/macOS
// go-fuse is the only mount backend; nothing here needs a Windows-native
// path.
package fuseadapter
