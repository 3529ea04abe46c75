package filter

import (
	"context"

	"github.com/osa030/gapbox/internal/domain/track"
)

// EmptyFileFilter rejects files without any content.
type EmptyFileFilter struct{}

func (f *EmptyFileFilter) Name() string {
	return "empty_file_filter"
}

func (f *EmptyFileFilter) Description() string {
	return "Rejects zero-byte files"
}

func (f *EmptyFileFilter) ReturnCodes() []string {
	return []string{"empty_file"}
}

func (f *EmptyFileFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *EmptyFileFilter) Check(ctx context.Context, file track.RawFile) Result {
	if len(file.Data) == 0 {
		return Reject("empty_file")
	}
	return Accept()
}

func init() {
	Register("empty_file_filter", func() Filter {
		return &EmptyFileFilter{}
	})
}
