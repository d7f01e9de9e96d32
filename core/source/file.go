package source

import (
	"context"
	"fmt"
	"os"

	"github.com/gocircum/nordconnect/core/catalog"
	"go.uber.org/multierr"
)

// File reads a server list previously cached by HTTP.
type File struct {
	Path string
}

// NewFile creates a File source.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Fetch reads and decodes the cached list.
func (f *File) Fetch(ctx context.Context) ([]catalog.RawServer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached server list '%s': %w", f.Path, err)
	}
	return decode(body)
}

// Fallback asks Primary first and Secondary when Primary fails.
type Fallback struct {
	Primary   catalog.Source
	Secondary catalog.Source
}

// Fetch returns the first successful result. When both fail, both errors are reported.
func (f *Fallback) Fetch(ctx context.Context) ([]catalog.RawServer, error) {
	servers, primaryErr := f.Primary.Fetch(ctx)
	if primaryErr == nil {
		return servers, nil
	}
	if f.Secondary == nil || ctx.Err() != nil {
		return nil, primaryErr
	}
	servers, secondaryErr := f.Secondary.Fetch(ctx)
	if secondaryErr == nil {
		return servers, nil
	}
	return nil, multierr.Combine(primaryErr, secondaryErr)
}
