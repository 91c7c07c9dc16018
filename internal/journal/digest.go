package journal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Digest fingerprints the record set of the journal at path independent of
// line order. A missing journal has an empty digest.
func Digest(path string) (string, int, error) {
	records, err := Load(path)
	if err != nil {
		return "", 0, err
	}
	if len(records) == 0 {
		return "", 0, nil
	}
	return DigestRecords(records)
}

// DigestRecords is Digest for an in-memory record set. Later duplicates of a
// name replace earlier ones, matching how a journal materializes.
func DigestRecords(records []Record) (string, int, error) {
	byName := make(map[string]Record, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	var buf bytes.Buffer
	for _, name := range names {
		line, err := Encode(byName[name])
		if err != nil {
			return "", 0, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), len(names), nil
}
