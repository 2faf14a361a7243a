// Package model manages the local speech model cache: a catalog of
// known models, resumable downloads with checksum verification, and
// in-use tracking so an active session's model cannot be deleted.
package model

// Model describes one downloadable speech model.
type Model struct {
	ID        string // stable identifier, e.g. "whisper-base-q5"
	Name      string // display name
	Filename  string // file name inside the cache directory
	URL       string
	SizeBytes int64  // expected size, for progress reporting
	SHA256    string // hex digest of the complete file; empty skips verification
}

const DefaultID = "whisper-base-q5"

// catalog is ordered smallest to largest. Quantized builds first since
// they are the practical choice on CPU.
var catalog = []Model{
	{
		ID:        "whisper-tiny-q5",
		Name:      "Tiny Q5",
		Filename:  "ggml-tiny-q5_1.bin",
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny-q5_1.bin",
		SizeBytes: 32 * 1024 * 1024,
		SHA256:    "c77c5766f1cef09b6b7d47f21b546cbddd4157886b3b5d6d4f50e35f4737984e",
	},
	{
		ID:        "whisper-base-q5",
		Name:      "Base Q5",
		Filename:  "ggml-base-q5_1.bin",
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base-q5_1.bin",
		SizeBytes: 60 * 1024 * 1024,
		SHA256:    "422f1ae452ade6f30a004d7e5c6a43195e4433bc370bf23fac9cc591f01a8898",
	},
	{
		ID:        "whisper-small-q5",
		Name:      "Small Q5",
		Filename:  "ggml-small-q5_1.bin",
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small-q5_1.bin",
		SizeBytes: 190 * 1024 * 1024,
		SHA256:    "ae85e4a935d7a567bd102fe55afc16bb595bdb618e11b2fc7591bc08120411bb",
	},
	{
		ID:        "whisper-base",
		Name:      "Base",
		Filename:  "ggml-base.bin",
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
		SizeBytes: 142 * 1024 * 1024,
		SHA256:    "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
	},
	{
		ID:        "whisper-small",
		Name:      "Small",
		Filename:  "ggml-small.bin",
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
		SizeBytes: 466 * 1024 * 1024,
		SHA256:    "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
	},
	{
		ID:        "whisper-turbo-q5",
		Name:      "Large v3 Turbo Q5",
		Filename:  "ggml-large-v3-turbo-q5_0.bin",
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo-q5_0.bin",
		SizeBytes: 574 * 1024 * 1024,
		SHA256:    "394221709cd5ad1f40c46e6031ca61bce88931e6e088c188294c6d5a55ffa7e2",
	},
}

// Catalog returns all known models in display order.
func Catalog() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a catalog entry by ID.
func Lookup(id string) (Model, error) {
	for _, m := range catalog {
		if m.ID == id {
			return m, nil
		}
	}
	return Model{}, ErrUnknownModel
}
