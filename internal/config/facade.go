package config

import (
	"path/filepath"
	"strings"

	"github.com/posixfs/posixfs/pkg/errno"
)

// Encoding is one of the façade's supported byte<->string codecs.
type Encoding string

const (
	EncodingUTF8    Encoding = "utf8"
	EncodingUTF8Alt Encoding = "utf-8"
	EncodingASCII   Encoding = "ascii"
	EncodingBase64  Encoding = "base64"
	EncodingHex     Encoding = "hex"
	EncodingBinary  Encoding = "binary"
	EncodingLatin1  Encoding = "latin1"
)

var validEncodings = map[Encoding]bool{
	EncodingUTF8:    true,
	EncodingUTF8Alt: true,
	EncodingASCII:   true,
	EncodingBase64:  true,
	EncodingHex:     true,
	EncodingBinary:  true,
	EncodingLatin1:  true,
}

// maxMode is the largest valid POSIX permission word (rwx bits plus
// setuid/setgid/sticky); file-type bits lie above it.
const maxMode = 0o7777

// FacadeConfig is the filesystem façade's construction-time
// configuration: rootPath, readOnly, encoding, mode, flags and
// recursive. It is validated and path-normalised once, at NewFacadeConfig
// time, then treated as immutable for the façade's lifetime.
type FacadeConfig struct {
	rootPath  string
	readOnly  bool
	encoding  Encoding
	mode      uint32
	flags     int
	recursive bool
}

// NewFacadeConfig validates and normalises the façade's configuration.
// Invalid input (bad encoding, out-of-range mode, negative flags, or a
// rootPath that cannot be made absolute) returns EINVAL.
func NewFacadeConfig(rootPath string, readOnly bool, encoding string, mode uint32, flags int, recursive bool) (FacadeConfig, error) {
	if rootPath == "" {
		return FacadeConfig{}, errno.New(errno.EINVAL).WithSyscall("configure").WithPath(rootPath)
	}
	abs := rootPath
	if !filepath.IsAbs(abs) {
		var err error
		abs, err = filepath.Abs(abs)
		if err != nil {
			return FacadeConfig{}, errno.New(errno.EINVAL).WithSyscall("configure").WithPath(rootPath)
		}
	}
	abs = filepath.Clean(abs)

	enc := Encoding(strings.ToLower(encoding))
	if !validEncodings[enc] {
		return FacadeConfig{}, errno.New(errno.EINVAL).WithSyscall("configure").WithPath(rootPath)
	}

	if mode > maxMode {
		return FacadeConfig{}, errno.New(errno.EINVAL).WithSyscall("configure").WithPath(rootPath)
	}
	if flags < 0 {
		return FacadeConfig{}, errno.New(errno.EINVAL).WithSyscall("configure").WithPath(rootPath)
	}

	return FacadeConfig{
		rootPath:  abs,
		readOnly:  readOnly,
		encoding:  enc,
		mode:      mode,
		flags:     flags,
		recursive: recursive,
	}, nil
}

func (c FacadeConfig) RootPath() string  { return c.rootPath }
func (c FacadeConfig) ReadOnly() bool    { return c.readOnly }
func (c FacadeConfig) Encoding() Encoding { return c.encoding }
func (c FacadeConfig) Mode() uint32      { return c.mode }
func (c FacadeConfig) Flags() int        { return c.flags }
func (c FacadeConfig) Recursive() bool   { return c.recursive }
