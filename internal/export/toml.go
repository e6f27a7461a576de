package export

import (
	"io"

	"github.com/mewmew/allplay/internal/catalog"
	"github.com/mewmew/allplay/internal/scan"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// WriteTOML writes the contents of the bundles of the catalog as a TOML table
// to w, mapping each bundle path to the sources of its modules.
func WriteTOML(w io.Writer, c *catalog.Catalog) error {
	root := make(map[string][]string)
	for _, bd := range c.Bundles {
		var sources []string
		for _, mi := range c.BundleModules(bd) {
			sources = append(sources, mi.Source)
		}
		root[bd.Path] = sources
	}
	return encodeTOML(w, root)
}

// WriteUsesTOML writes the direct calls of the use reports as a TOML table to
// w, mapping each module location to a table of call instructions by calling
// function. Reports without calls are omitted.
func WriteUsesTOML(w io.Writer, reports []*scan.UseReport) error {
	root := make(map[string]map[string][]string)
	for _, r := range reports {
		if len(r.Calls) == 0 {
			continue
		}
		root[r.Path] = r.Calls
	}
	return encodeTOML(w, root)
}

// encodeTOML writes v in TOML format to w.
func encodeTOML(w io.Writer, v interface{}) error {
	enc := toml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
