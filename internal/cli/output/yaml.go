package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// PrintYAML writes data as YAML indented by two spaces, the layout of the
// user record files. A nil slice prints as [].
func PrintYAML(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(emptyIfNil(data)); err != nil {
		_ = encoder.Close()
		return err
	}
	return encoder.Close()
}
