// Package auth supplies bearer credentials to the transport. Providers are
// injected explicitly at construction time; nothing in this module reads
// ambient process state.
package auth

import (
	"os"
	"strings"
	"sync"
	"time"
)

// TokenProvider yields the current bearer token. The second return is false
// when no credential is available, in which case requests go out without an
// Authorization header.
type TokenProvider interface {
	Token() (string, bool)
}

// Static returns a provider that always yields the given token.
func Static(token string) TokenProvider {
	return staticProvider(strings.TrimSpace(token))
}

type staticProvider string

func (p staticProvider) Token() (string, bool) {
	return string(p), p != ""
}

// None returns a provider with no credential.
func None() TokenProvider {
	return staticProvider("")
}

// FileProvider reads the token from a file, re-reading when the file's
// mtime changes. A missing or empty file means no credential.
type FileProvider struct {
	path string

	mu    sync.Mutex
	mod   time.Time
	token string
}

// NewFileProvider creates a provider backed by the given file path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Token() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err != nil {
		p.token = ""
		p.mod = time.Time{}
		return "", false
	}
	if info.ModTime() != p.mod {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return "", false
		}
		p.token = strings.TrimSpace(string(data))
		p.mod = info.ModTime()
	}
	return p.token, p.token != ""
}
