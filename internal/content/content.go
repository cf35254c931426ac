// Package content reads declarative game data files through an isolated viper
// instance, so the format follows the file extension (yaml, json, toml).
package content

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"lukechampine.com/blake3"
)

// Document is a decoded content file plus the digest of its raw bytes.
type Document struct {
	Path   string
	Digest [32]byte
	v      *viper.Viper
}

// Read loads a content file from disk.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// Parse decodes raw content in the given format.
func Parse(data []byte, format string) (*Document, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("error parsing %s content: %w", format, err)
	}
	return &Document{Digest: blake3.Sum256(data), v: v}, nil
}

// Decode unmarshals the whole document into out.
func (d *Document) Decode(out any) error {
	return d.v.Unmarshal(out)
}

// DigestHex returns the content digest as lowercase hex.
func (d *Document) DigestHex() string {
	return hex.EncodeToString(d.Digest[:])
}
