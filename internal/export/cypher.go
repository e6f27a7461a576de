package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/mewmew/allplay/internal/catalog"
	"github.com/pkg/errors"
)

// WriteCypher writes Cypher queries to w creating a node for every module and
// bundle of the catalog, and a CONTAINS relationship from each bundle to its
// modules. Paths are trimmed of the given prefix.
func WriteCypher(w io.Writer, c *catalog.Catalog, prefix string) error {
	bw := bufio.NewWriter(w)
	// Module nodes.
	for _, mi := range c.Modules {
		fmt.Fprintf(bw, "MERGE (:Module {Name:%s, Path:%s, CRC:%d});\n",
			strconv.Quote(basename(mi.Source)), strconv.Quote(TrimPath(mi.Source, prefix)), mi.CRC)
	}
	bw.WriteString("\n")
	// Bundle nodes.
	for _, bd := range c.Bundles {
		fmt.Fprintf(bw, "MERGE (:Bundle {Name:%s, Path:%s});\n",
			strconv.Quote(basename(bd.Path)), strconv.Quote(TrimPath(bd.Path, prefix)))
	}
	bw.WriteString("\n")
	// Bundle -> module relationships.
	for _, bd := range c.Bundles {
		path := strconv.Quote(TrimPath(bd.Path, prefix))
		for i, crc := range bd.Modules {
			fmt.Fprintf(bw, "MATCH (b:Bundle {Path:%s})\n", path)
			fmt.Fprintf(bw, "MATCH (m:Module {CRC:%d})\n", crc)
			fmt.Fprintf(bw, "MERGE (b)-[:CONTAINS {index:%d}]->(m);\n", i)
		}
	}
	return errors.WithStack(bw.Flush())
}
