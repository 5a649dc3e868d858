package directory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/concess/internal/logger"
	"github.com/marmos91/concess/pkg/credential"
)

// UsersDir is the sub-directory of the data path holding one file per user.
const UsersDir = "users"

// recordExtensions are the file extensions parsed as records.
var recordExtensions = []string{".yaml", ".yml"}

// UsersPath returns the users directory for a data path.
func UsersPath(dataPath string) string {
	return filepath.Join(dataPath, UsersDir)
}

// Load builds a Directory from <path>/users.
//
// Every *.yaml and *.yml file is one user; the file name without extension
// is the username. Any unreadable or malformed record fails the whole load,
// since serving a partial directory would silently lock users out (or in).
//
// Returns:
//   - *Directory: The new snapshot
//   - error: A *LoadError describing the first offending record
func Load(path string) (*Directory, error) {
	dir := UsersPath(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Kind: Unreadable, Path: dir, Err: err}
	}

	seen := make(map[string]string, len(entries)) // folded username -> file
	records := make([]*Record, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		file := filepath.Join(dir, name)

		if strings.HasPrefix(name, ".") {
			continue
		}

		username, ok := usernameOf(name)
		if !ok || entry.IsDir() {
			logger.Warn("Ignoring non-record entry in users directory", logger.KeyPath, file)
			continue
		}

		folded := strings.ToLower(username)
		if prev, dup := seen[folded]; dup {
			return nil, &LoadError{
				Kind:     Duplicate,
				Path:     file,
				Username: username,
				Err:      fmt.Errorf("already defined by %s", prev),
			}
		}
		seen[folded] = file

		rec, err := loadRecord(file, username)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := checkGroupSpelling(dir, records); err != nil {
		return nil, err
	}

	return newDirectory(path, records), nil
}

// usernameOf strips a record extension from a file name.
func usernameOf(name string) (string, bool) {
	ext := filepath.Ext(name)
	for _, want := range recordExtensions {
		if strings.EqualFold(ext, want) {
			username := strings.TrimSuffix(name, ext)
			return username, username != ""
		}
	}
	return "", false
}

func loadRecord(file, username string) (*Record, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, &LoadError{Kind: Unreadable, Path: file, Username: username, Err: err}
	}

	var raw recordFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty record")
		}
		return nil, &LoadError{Kind: Malformed, Path: file, Username: username, Err: err}
	}

	if raw.Username != "" && raw.Username != username {
		return nil, &LoadError{
			Kind:     Inconsistent,
			Path:     file,
			Username: username,
			Err:      fmt.Errorf("embedded username %q does not match file name", raw.Username),
		}
	}

	rec, err := raw.toRecord(username)
	if err != nil {
		return nil, &LoadError{Kind: Malformed, Path: file, Username: username, Err: err}
	}

	switch {
	case rec.Credential == "":
		logger.Warn("User has no credential and cannot authenticate", logger.KeyUser, username)
	case credential.Validate(rec.Credential) != nil:
		logger.Warn("User has an unusable credential and cannot authenticate",
			logger.KeyUser, username, logger.Err(credential.Validate(rec.Credential)))
	case credential.IsReversible(rec.Credential):
		logger.Warn("User has a cleartext credential", logger.KeyUser, username)
	}

	return rec, nil
}

// checkGroupSpelling rejects group names that differ only by case, because
// both protocol views compare names case-insensitively.
func checkGroupSpelling(dir string, records []*Record) error {
	spelling := make(map[string]string)
	for _, r := range records {
		for _, g := range r.Groups {
			folded := strings.ToLower(g)
			if prev, ok := spelling[folded]; ok && prev != g {
				return &LoadError{
					Kind:     Inconsistent,
					Path:     dir,
					Username: r.Username,
					Err:      fmt.Errorf("group %q conflicts with %q", g, prev),
				}
			}
			spelling[folded] = g
		}
	}
	return nil
}
