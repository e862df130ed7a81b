package statestore

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"io"
)

// Codec serializes entry values to bytes and back. It is the seam between
// the store and its optional compression/encryption stages.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out *any) error
}

func init() {
	// gob requires every concrete type that might flow through an any
	// field to be registered up front so the wire format can tag it.
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register(map[string]any(nil))
	gob.Register([]any(nil))
}

// gobCodec is the default Codec. Encoding concerns (compression,
// encryption) are applied on top of its output, not inside it.
type gobCodec struct{}

func (gobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte, out *any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}

// Compressor compresses/decompresses bytes above a namespace's
// CompressionThreshold (§3 field compression).
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// gzipCompressor is the built-in Compressor. No domain dependency in the
// corpus exposes a general-purpose byte compressor as an importable API
// (klauspost/compress only appears transitively, pulled in by unrelated
// storage engines), so this stage uses the standard library directly.
type gzipCompressor struct{}

func (gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Cipher encrypts/decrypts bytes for namespaces with Encryption enabled.
// Real key management and AEAD selection are deliberately out of scope
// (Non-goal: cryptographic primitives); this is the pluggable seam a real
// deployment would fill with a vetted implementation.
type Cipher interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// xorStubCipher is a placeholder Cipher: reversible, deterministic, and
// explicitly not secret-safe. It exists so Encryption-enabled namespaces
// exercise the full encode -> compress -> encrypt pipeline end to end.
type xorStubCipher struct {
	key []byte
}

func newXORStubCipher(key []byte) *xorStubCipher {
	if len(key) == 0 {
		key = []byte("holon-statestore-stub-key")
	}
	return &xorStubCipher{key: key}
}

func (c *xorStubCipher) xor(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ c.key[i%len(c.key)]
	}
	return out
}

func (c *xorStubCipher) Encrypt(data []byte) ([]byte, error) { return c.xor(data), nil }
func (c *xorStubCipher) Decrypt(data []byte) ([]byte, error) { return c.xor(data), nil }
