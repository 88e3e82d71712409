package storage

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	digestMarker = "_extracts_"
	dateLayout   = "2006-01-02"

	// TextExt and AudioExt are the digest file extensions.
	TextExt  = ".txt"
	AudioExt = ".wav"
)

// Slug lowercases name and collapses runs of other characters into "-".
func Slug(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(sb.String(), "-")
	if slug == "" {
		return "digest"
	}
	return slug
}

// DigestPrefix is the shared base name of a site's text and audio for one day.
func DigestPrefix(siteName string, date time.Time) string {
	return Slug(siteName) + digestMarker + date.Format(dateLayout)
}

// Digest groups the files produced by one run.
type Digest struct {
	Prefix    string    `json:"prefix"`
	Site      string    `json:"site"`
	Date      time.Time `json:"date"`
	TextFile  string    `json:"textFile,omitempty"`
	AudioFile string    `json:"audioFile,omitempty"`
	TextSize  int64     `json:"textSize,omitempty"`
	AudioSize int64     `json:"audioSize,omitempty"`
	ModTime   time.Time `json:"modTime"`
}

// ParseDigestName splits "<slug>_extracts_<date>.<ext>" into its parts.
func ParseDigestName(name string) (site string, date time.Time, ext string, ok bool) {
	ext = name[strings.LastIndex(name, ".")+1:]
	if ext == name || (("."+ext) != TextExt && ("."+ext) != AudioExt) {
		return "", time.Time{}, "", false
	}
	base := strings.TrimSuffix(name, "."+ext)

	idx := strings.LastIndex(base, digestMarker)
	if idx <= 0 {
		return "", time.Time{}, "", false
	}
	date, err := time.Parse(dateLayout, base[idx+len(digestMarker):])
	if err != nil {
		return "", time.Time{}, "", false
	}
	return base[:idx], date, "." + ext, true
}

// Digests lists the digests in the store, newest first.
func (s *LocalStore) Digests() ([]Digest, error) {
	files, err := s.ListFiles("")
	if err != nil {
		return nil, err
	}

	byPrefix := make(map[string]*Digest)
	for _, f := range files {
		site, date, ext, ok := ParseDigestName(f.Name())
		if !ok {
			continue
		}
		prefix := strings.TrimSuffix(f.Name(), ext)
		d, exists := byPrefix[prefix]
		if !exists {
			d = &Digest{Prefix: prefix, Site: site, Date: date}
			byPrefix[prefix] = d
		}
		if ext == TextExt {
			d.TextFile, d.TextSize = f.Name(), f.Size()
		} else {
			d.AudioFile, d.AudioSize = f.Name(), f.Size()
		}
		if f.ModTime().After(d.ModTime) {
			d.ModTime = f.ModTime()
		}
	}

	digests := make([]Digest, 0, len(byPrefix))
	for _, d := range byPrefix {
		digests = append(digests, *d)
	}
	sort.Slice(digests, func(i, j int) bool {
		if !digests[i].Date.Equal(digests[j].Date) {
			return digests[i].Date.After(digests[j].Date)
		}
		return digests[i].Prefix < digests[j].Prefix
	})
	return digests, nil
}

// Prune deletes digest files dated before cutoff and returns the removed names.
// With dryRun set nothing is deleted.
func (s *LocalStore) Prune(cutoff time.Time, dryRun bool, log logrus.FieldLogger) ([]string, error) {
	files, err := s.ListFiles("")
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, f := range files {
		_, date, _, ok := ParseDigestName(f.Name())
		if !ok || !date.Before(cutoff) {
			continue
		}
		if !dryRun {
			if err := s.DeleteFile(f.Name()); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("delete %s: %w", f.Name(), err)
			}
		}
		log.WithFields(logrus.Fields{
			"file":   f.Name(),
			"dryRun": dryRun,
		}).Info("pruned digest file")
		removed = append(removed, f.Name())
	}
	return removed, nil
}
