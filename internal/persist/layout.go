package persist

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openparl/stenosync/internal/archive"
)

// Archive layout under the destination root:
//
//	legislatura_<id>/<year>/<filename>.pdf
//	legislatura_<id>/<year>/<filename>.json   (sidecar)
//
// Items without an extracted date land in an "unknown_year" directory and
// carry "unknown_date" in the generated filename, exactly like the stored
// corpus this mirrors.

const (
	unknownYearDir  = "unknown_year"
	unknownDateName = "unknown_date"
)

// Layout builds destination paths from typed segments.
type Layout struct {
	Root   string
	Source string
}

// ItemPath returns the final destination path for an item. Listing items
// keep their source filename; sweep items get a deterministic generated one.
func (l Layout) ItemPath(item archive.Item) string {
	return filepath.Join(l.Root, legislatureDir(item.Legislature), yearDir(item), l.fileName(item))
}

// SidecarPath returns the metadata path next to an item file.
func (l Layout) SidecarPath(itemPath string) string {
	return strings.TrimSuffix(itemPath, filepath.Ext(itemPath)) + ".json"
}

func (l Layout) fileName(item archive.Item) string {
	if item.Filename != "" {
		return item.Filename
	}
	date := unknownDateName
	if !item.Date.IsZero() {
		date = item.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("%s_leg%d_sed%04d_%s.pdf", l.Source, item.Legislature, item.Index, date)
}

func legislatureDir(id archive.Legislature) string {
	return fmt.Sprintf("legislatura_%d", id)
}

func yearDir(item archive.Item) string {
	if item.Date.IsZero() {
		return unknownYearDir
	}
	return fmt.Sprintf("%d", item.Date.Year())
}
