// Package idgen generates short random names for temporary files that are
// renamed into place once fully written.
package idgen

import (
	"fmt"
	"path/filepath"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of a name.
// It avoids characters that need quoting on any filesystem.
var Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters generated.
var Length = 12

// Suffix returns a new random string of Length characters.
func Suffix() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return id, nil
}

// TempPath returns a hidden sibling of path with a unique suffix, suitable as
// the staging file for an atomic rename onto path.
func TempPath(path string) (string, error) {
	id, err := Suffix()
	if err != nil {
		return "", err
	}
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base+"."+id+".tmp"), nil
}
