package report

import (
	"fmt"
	"io"
	"os"

	"github.com/anstrom/portstrom/internal/errors"
)

// encoder writes a report to w in one format.
type encoder func(w io.Writer, r *ScanReport) error

var encoders = map[Format]encoder{
	FormatJSON: writeJSON,
	FormatCSV:  writeCSV,
	FormatHTML: writeHTML,
}

// Render writes r to path. An empty format is sniffed from the path's
// extension. Unsupported formats and a missing path are rejected before
// anything touches the filesystem. The file is created or truncated; a
// failed encode may leave it partially written.
func Render(r *ScanReport, path string, format Format) error {
	if path == "" {
		return errors.WrapRenderError(errors.CodeOutputMissing, "", string(format),
			fmt.Errorf("no output path given"))
	}

	f, name, ok := ResolveFormat(path, format)
	if !ok {
		return errors.ErrUnsupportedFormat(path, name)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.WrapRenderError(errors.CodeFileCreate, path, string(f), err)
	}

	if err := encoders[f](file, r); err != nil {
		_ = file.Close()
		return errors.WrapRenderError(errors.CodeEncode, path, string(f), err)
	}
	if err := file.Close(); err != nil {
		return errors.WrapRenderError(errors.CodeFileCreate, path, string(f), err)
	}
	return nil
}
