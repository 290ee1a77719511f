// Package preprocessing only holds the version of the set of tools to prepare model inputs with GoMLX.
//
// There are 3 main groups of sub-packages:
//
//   - tokenizers: tokenizers with an explicit special-token capability (WordPiece and SentencePiece based).
//   - preprocessing: input pipelines built on top of tokenizers, like masked language model preprocessing,
//     and image segmentation preprocessing.
//   - cmd/mlmprep: a command line tool to preprocess text files into masked language model batches.
package preprocessing

import "github.com/pkg/errors"

// Version of the library.
// Manually kept in sync with project releases.
var Version = "v0.1.0-dev"

// ErrInvalidConfig is returned (wrapped) by constructors of the preprocessing components when
// given invalid parameters. Use errors.Is to check for it.
var ErrInvalidConfig = errors.New("invalid preprocessing configuration")
