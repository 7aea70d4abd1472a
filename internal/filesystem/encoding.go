package filesystem

import (
	"context"
	"encoding/base64"
	"encoding/hex"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/config"
	"github.com/posixfs/posixfs/pkg/errno"
)

// DecodeString renders data as a string per enc.
func DecodeString(data []byte, enc config.Encoding) (string, error) {
	switch enc {
	case config.EncodingUTF8, config.EncodingUTF8Alt, config.EncodingASCII, config.EncodingBinary, config.EncodingLatin1:
		return string(data), nil
	case config.EncodingBase64:
		return base64.StdEncoding.EncodeToString(data), nil
	case config.EncodingHex:
		return hex.EncodeToString(data), nil
	default:
		return "", errno.New(errno.EINVAL).WithSyscall("decode")
	}
}

// EncodeString reverses DecodeString, turning s back into raw bytes per enc.
func EncodeString(s string, enc config.Encoding) ([]byte, error) {
	switch enc {
	case config.EncodingUTF8, config.EncodingUTF8Alt, config.EncodingASCII, config.EncodingBinary, config.EncodingLatin1:
		return []byte(s), nil
	case config.EncodingBase64:
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errno.New(errno.EINVAL).WithSyscall("encode").WithCause(err)
		}
		return data, nil
	case config.EncodingHex:
		data, err := hex.DecodeString(s)
		if err != nil {
			return nil, errno.New(errno.EINVAL).WithSyscall("encode").WithCause(err)
		}
		return data, nil
	default:
		return nil, errno.New(errno.EINVAL).WithSyscall("encode")
	}
}

// ReadFileString reads path and decodes it per f's configured encoding.
func (f *Facade) ReadFileString(ctx context.Context, path string) (string, error) {
	data, err := f.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return DecodeString(data, f.cfg.Encoding())
}

// WriteFileString encodes s per f's configured encoding and writes path.
func (f *Facade) WriteFileString(ctx context.Context, path string, s string, opts backend.WriteOptions) (int, string, error) {
	data, err := EncodeString(s, f.cfg.Encoding())
	if err != nil {
		return 0, "", err
	}
	return f.WriteFile(ctx, path, data, opts)
}
