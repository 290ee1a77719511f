// Package tokenizers creates tokenizers from local model preset directories.
//
// Given a directory with a "tokenizer_config.json" file (as exported by HuggingFace), tokenizers uses its
// "tokenizer_class" to pick the constructor, and the vocabulary files found next to it ("vocab.txt" for
// WordPiece, "spiece.model" or "tokenizer.model" for SentencePiece) to instantiate a Tokenizer.
package tokenizers

import (
	"path/filepath"

	"github.com/gomlx/go-preprocessing/internal/files"
	"github.com/gomlx/go-preprocessing/tokenizers/api"
	"github.com/gomlx/go-preprocessing/tokenizers/sentencepiece"
	"github.com/gomlx/go-preprocessing/tokenizers/wordpiece"
	"github.com/pkg/errors"
)

// Tokenizer interface allows one convert test to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer = api.Tokenizer

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken = api.SpecialToken

const (
	TokBeginningOfSentence = api.TokBeginningOfSentence
	TokEndOfSentence       = api.TokEndOfSentence
	TokUnknown             = api.TokUnknown
	TokPad                 = api.TokPad
	TokMask                = api.TokMask
	TokClassification      = api.TokClassification
	TokSeparator           = api.TokSeparator
	TokSpecialTokensCount  = api.TokSpecialTokensCount
)

// ErrMissingSpecialToken is returned (wrapped) when a tokenizer lacks a required special token.
var ErrMissingSpecialToken = api.ErrMissingSpecialToken

// File names looked up in a preset directory.
const (
	ConfigFileName = "tokenizer_config.json"
	VocabFileName  = "vocab.txt"
)

// SpModelFileNames are the candidate names for a SentencePiece model file, in order of preference.
var SpModelFileNames = []string{"spiece.model", "tokenizer.model", "sentencepiece.model"}

// FromDir creates a new tokenizer from the given local preset directory.
//
// If "tokenizer_config.json" is missing, the class is inferred from the vocabulary files present:
// "BertTokenizer" for a "vocab.txt", "FNetTokenizer" for a SentencePiece model.
//
// If it fails to load those files, or create a tokenizer, it returns an error.
func FromDir(dir string) (Tokenizer, error) {
	config, err := GetConfig(dir)
	if err != nil {
		return nil, err
	}
	constructor, found := registerOfClasses[config.TokenizerClass]
	if !found {
		return nil, errors.Errorf("unknown tokenizer class %q", config.TokenizerClass)
	}
	tok, err := constructor(config, filepath.Dir(config.ConfigFile))
	if err != nil {
		return nil, errors.WithMessagef(err, "while creating %s from %q", config.TokenizerClass, dir)
	}
	return tok, nil
}

// GetConfig returns the parsed "tokenizer_config.json" Config object for the preset directory,
// with the VocabFile and SpModelFile fields resolved.
func GetConfig(dir string) (*api.Config, error) {
	dir, err := files.ReplaceTildeInDir(dir)
	if err != nil {
		return nil, err
	}
	if !files.IsDir(dir) {
		return nil, errors.Errorf("preset directory %q doesn't exist or is not a directory", dir)
	}

	configPath := filepath.Join(dir, ConfigFileName)
	var config *api.Config
	if files.Exists(configPath) {
		config, err = api.ParseConfigFile(configPath) // tokenizer_config.json
		if err != nil {
			return nil, err
		}
	} else {
		config = &api.Config{ConfigFile: configPath}
	}

	if vocabPath := filepath.Join(dir, VocabFileName); files.Exists(vocabPath) {
		config.VocabFile = vocabPath
	}
	for _, name := range SpModelFileNames {
		if spPath := filepath.Join(dir, name); files.Exists(spPath) {
			config.SpModelFile = spPath
			break
		}
	}

	if config.TokenizerClass == "" {
		switch {
		case config.VocabFile != "":
			config.TokenizerClass = "BertTokenizer"
			config.DoLowerCase = true
		case config.SpModelFile != "":
			config.TokenizerClass = "FNetTokenizer"
		default:
			return nil, errors.Errorf("no %s nor vocabulary files found in %q", ConfigFileName, dir)
		}
	}
	return config, nil
}

// Config struct to hold HuggingFace's tokenizer_config.json contents.
// There is no formal schema for this file, but these are some common fields that may be of use.
// Specific tokenizer classes are free to implement additional features as they see fit.
//
// The extra field ConfigFile holds the path to the file with the full config.
type Config = api.Config

// TokenizerConstructor is used by Tokenizer implementations to provide implementations for different
// tokenizer classes. dir is the preset directory.
type TokenizerConstructor func(config *api.Config, dir string) (api.Tokenizer, error)

// RegisterTokenizerClass used by Tokenizer implementations.
func RegisterTokenizerClass(name string, constructor TokenizerConstructor) {
	registerOfClasses[name] = constructor
}

var (
	registerOfClasses = make(map[string]TokenizerConstructor)
)

func init() {
	for _, className := range []string{"BertTokenizer", "BertTokenizerFast", "DistilBertTokenizer"} {
		RegisterTokenizerClass(className, wordpiece.NewFromConfig)
	}
	for _, className := range []string{"FNetTokenizer", "AlbertTokenizer", "GemmaTokenizer"} {
		RegisterTokenizerClass(className, sentencepiece.New)
	}
}
