// Package export serialises collected records into a tab-separated text
// payload and writes it to disk.
//
// Tab is the field separator because post text commonly contains commas;
// quoting is still CSV-style (fields containing the separator, a quote or a
// line break are wrapped in quotes with internal quotes doubled), so the
// output opens cleanly in spreadsheet tools.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Lallians/Linkedin-post-scrapper/post"
)

// Separator is the field separator used in the export payload.
const Separator = "\t"

// EmptySentinel is returned instead of a header-only document when there is
// nothing to encode.
const EmptySentinel = "No data to export"

// header is the fixed column order.
var header = []string{"timestamp", "id", "text", "link_count", "links", "media_count", "media"}

// Encode produces one header line followed by one line per record.
// Zero records yields the sentinel string rather than a header-only document.
func Encode(records []post.Record) []byte {
	if len(records) == 0 {
		return []byte(EmptySentinel + "\n")
	}

	var b strings.Builder
	b.WriteString(strings.Join(header, Separator))
	b.WriteByte('\n')

	for _, r := range records {
		fields := []string{
			r.Timestamp.Format(time.RFC3339),
			r.ID,
			r.Text,
			strconv.Itoa(len(r.Links)),
			joinLinkURLs(r.Links),
			strconv.Itoa(len(r.Media)),
			joinMediaSrcs(r.Media),
		}
		for i, f := range fields {
			if i > 0 {
				b.WriteString(Separator)
			}
			b.WriteString(quote(f))
		}
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

// quote wraps a field in quotes when it contains the separator, a quote
// character or a line break, doubling internal quotes.
func quote(field string) string {
	if !strings.ContainsAny(field, Separator+`"`+"\r\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func joinLinkURLs(links []post.Link) string {
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	return strings.Join(urls, ";")
}

func joinMediaSrcs(media []post.Media) string {
	srcs := make([]string, len(media))
	for i, m := range media {
		srcs[i] = m.Src
	}
	return strings.Join(srcs, ";")
}

// Filename derives the export filename from a timestamp: the ISO8601 instant
// with ':' and '.' replaced by '-', so it is valid on every filesystem.
func Filename(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "posts_export_" + stamp + ".csv"
}

// WriteFile encodes records and writes them under dir using a
// timestamp-derived filename. Returns the full path of the written file.
func WriteFile(dir string, records []post.Record, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: mkdir: %w", err)
	}
	path := filepath.Join(dir, Filename(now))
	if err := os.WriteFile(path, Encode(records), 0o644); err != nil {
		return "", fmt.Errorf("export: write: %w", err)
	}
	return path, nil
}
