// Package imageprovider is the external collaborator the sniffer's HTTP
// image routes read from. The actual HiPS/DSS sky-image fetch, mosaicking,
// TIFF generation and synthetic star-field painting are explicitly out of
// scope; this package is a narrow Provider interface plus a deterministic
// in-memory fake standing in for that pipeline, sized and shaped like the
// reference device's static asset set (see state.AstroDir).
package imageprovider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/originsim/origin-server/internal/state"
)

// Provider answers the two HTTP image routes the sniffer serves:
// the rotating live preview, and a specific astrophotography file.
// It satisfies sniffer.ImageStore.
type Provider interface {
	PreviewImage() (body []byte, contentType string)
	AstroFile(dir, file string) (body []byte, contentType string, ok bool)
}

// Fake is a deterministic, in-memory Provider. It never touches disk or a
// network; every file it serves is a small synthetic payload derived from
// its path, stable across calls so tests can assert on exact bytes.
type Fake struct {
	store *state.Store

	mu      sync.Mutex
	preview []byte
}

// New builds a Fake seeded with the directory listing the state store
// already carries from its defaults.
func New(store *state.Store) *Fake {
	return &Fake{store: store, preview: syntheticImage("preview/0")}
}

// PreviewImage returns the current rotating live-preview image. The
// counter itself is owned by state.Store.NextImageFilename; callers that
// want a fresh preview should call that first.
func (f *Fake) PreviewImage() ([]byte, string) {
	var path string
	f.store.View(func(s state.TelescopeState) { path = s.Image.FileLocation })

	f.mu.Lock()
	defer f.mu.Unlock()
	f.preview = syntheticImage(path)
	return f.preview, "image/jpeg"
}

// AstroFile returns a deterministic payload for a file that appears in the
// given directory's listing in the state store, or ok=false if the
// directory or file name isn't recognized.
func (f *Fake) AstroFile(dir, file string) ([]byte, string, bool) {
	var found bool
	f.store.View(func(s state.TelescopeState) {
		for _, d := range s.AstroDirs {
			if d.Name != dir {
				continue
			}
			for _, name := range d.Files {
				if name == file {
					found = true
					return
				}
			}
		}
	})
	if !found {
		return nil, "", false
	}

	contentType := "image/tiff"
	if strings.HasSuffix(file, ".jpg") || strings.HasSuffix(file, ".jpeg") {
		contentType = "image/jpeg"
	}
	return syntheticImage(dir + "/" + file), contentType, true
}

// syntheticImage derives a small, stable byte blob from a path so repeated
// calls for the same path return identical bytes without needing to
// generate or store an actual image.
func syntheticImage(path string) []byte {
	return []byte(fmt.Sprintf("ORIGIN-SIM-IMAGE:%s", path))
}
