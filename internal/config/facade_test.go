package config

import "testing"

func TestNewFacadeConfigNormalisesRelativePath(t *testing.T) {
	cfg, err := NewFacadeConfig("some/dir", false, "utf8", 0o644, 0, true)
	if err != nil {
		t.Fatalf("NewFacadeConfig: %v", err)
	}
	if !hasPrefixAbs(cfg.RootPath()) {
		t.Fatalf("expected an absolute rootPath, got %q", cfg.RootPath())
	}
}

func hasPrefixAbs(p string) bool {
	return len(p) > 0 && p[0] == '/'
}

func TestNewFacadeConfigRejectsEmptyRoot(t *testing.T) {
	if _, err := NewFacadeConfig("", false, "utf8", 0, 0, false); err == nil {
		t.Fatalf("expected an error for an empty rootPath")
	}
}

func TestNewFacadeConfigRejectsUnknownEncoding(t *testing.T) {
	if _, err := NewFacadeConfig("/x", false, "utf32", 0, 0, false); err == nil {
		t.Fatalf("expected an error for an unknown encoding")
	}
}

func TestNewFacadeConfigAcceptsAllDocumentedEncodings(t *testing.T) {
	for _, enc := range []string{"utf8", "utf-8", "ascii", "base64", "hex", "binary", "latin1"} {
		if _, err := NewFacadeConfig("/x", false, enc, 0, 0, false); err != nil {
			t.Fatalf("encoding %q rejected: %v", enc, err)
		}
	}
}

func TestNewFacadeConfigRejectsModeOutOfRange(t *testing.T) {
	if _, err := NewFacadeConfig("/x", false, "utf8", 0o10000, 0, false); err == nil {
		t.Fatalf("expected an error for mode > 0o7777")
	}
}

func TestNewFacadeConfigRejectsNegativeFlags(t *testing.T) {
	if _, err := NewFacadeConfig("/x", false, "utf8", 0, -1, false); err == nil {
		t.Fatalf("expected an error for negative flags")
	}
}

func TestNewFacadeConfigFreezesValues(t *testing.T) {
	cfg, err := NewFacadeConfig("/x", true, "hex", 0o600, 3, true)
	if err != nil {
		t.Fatalf("NewFacadeConfig: %v", err)
	}
	if cfg.RootPath() != "/x" || !cfg.ReadOnly() || cfg.Encoding() != EncodingHex || cfg.Mode() != 0o600 || cfg.Flags() != 3 || !cfg.Recursive() {
		t.Fatalf("unexpected frozen config: %+v", cfg)
	}
}
