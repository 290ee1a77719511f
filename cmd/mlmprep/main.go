// mlmprep reads text, one example per line, and writes masked language model batches as JSON lines.
//
// Example:
//
//	mlmprep --tokenizer ~/presets/bert_tiny_en_uncased --config mlm.yaml --input corpus.txt > batches.jsonl
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	app := preprocessCmd()

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
