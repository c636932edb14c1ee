package naming

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lookup reports whether a display name is already taken.
type Lookup interface {
	ExistsByFilename(ctx context.Context, filename string) (bool, error)
}

// Resolver computes collision-free display names by probing Lookup.
// It does not reserve the name it returns; the metadata store's unique
// index is what makes the result stick.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a Resolver backed by lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve returns desired if it is free, otherwise the first free
// "base (n).ext" for n = 1, 2, ...
func (r *Resolver) Resolve(ctx context.Context, desired string) (string, error) {
	base, ext := SplitName(desired)
	candidate := desired
	for counter := 1; ; counter++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		taken, err := r.lookup.ExistsByFilename(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check filename %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, counter, ext)
	}
}

// SplitName splits name at its final dot into base and extension.
// A name whose only dot is the leading one (".pdf") has no extension.
func SplitName(name string) (base, ext string) {
	ext = filepath.Ext(name)
	base = strings.TrimSuffix(name, ext)
	if base == "" {
		return name, ""
	}
	return base, ext
}

// StorageName generates the blob key for an upload. It combines the upload
// time with a random UUID and keeps only the lower-cased extension of
// originalName, so nothing user-controlled reaches the filesystem path.
func StorageName(originalName string, now time.Time) string {
	_, ext := SplitName(filepath.Base(originalName))
	ext = strings.ToLower(ext)
	if strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), ext)
}
