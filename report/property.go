package report

import (
	"strings"

	"github.com/arloliu/go-eyescan/internal/util"
	"github.com/arloliu/go-eyescan/property"
)

// FormatProperties renders descriptors as a table sorted by property name.
func FormatProperties(descs map[string]property.Descriptor) string {
	t := &table{header: []string{"NAME", "VALUE", "DEFAULT", "TYPE", "PERMISSIONS", "KIND", "GROUPS", "VALID VALUES", "DESCRIPTION"}}

	for _, name := range util.SortedKeys(descs) {
		d := descs[name]
		t.add(
			name,
			formatValue(d.Value),
			formatValue(d.Default),
			d.Type.String(),
			d.Perms.String(),
			d.Kind.String(),
			strings.Join(d.Groups, ", "),
			formatValue(d.Domain),
			d.Description,
		)
	}

	return t.render()
}

// Properties renders descriptors into sink.
func Properties(descs map[string]property.Descriptor, sink Sink) {
	sink.write(FormatProperties(descs))
}
