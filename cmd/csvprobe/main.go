// Command csvprobe infers the MySQL schema for a CSV file and prints the
// column breakdown plus the CREATE TABLE statement, without touching a
// database. Useful for checking what the pipeline would do with a file
// before dropping it in the bucket.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/schema"
)

func main() {
	var (
		sampleRows = flag.Int("sample", 1000, "rows to sample for inference")
		maxVarchar = flag.Int("max-varchar", 1024, "widest VARCHAR before TEXT")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.csv>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	inferred, err := schema.Infer(f, schema.InferOptions{
		SourceFile:         filepath.Base(path),
		SampleRows:         *sampleRows,
		MaxVarchar:         *maxVarchar,
		AddMetadataColumns: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("table: %s (sampled %d rows)\n\n", inferred.TableName, inferred.RowCountSampled)
	for _, c := range inferred.Columns {
		null := "NOT NULL"
		if c.Nullable {
			null = "NULL"
		}
		fmt.Printf("  %-32s %-20s %-8s  (from %q)\n", c.Name, c.SQLType, null, c.OriginalName)
	}

	stmt, err := schema.BuildCreateTableSQL(inferred)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("\n%s\n", stmt)
}
