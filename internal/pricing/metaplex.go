package pricing

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// metadataV1Key tags a Metaplex MetadataV1 account.
const metadataV1Key = 4

// Max borsh string lengths accepted from metadata accounts.
const (
	maxNameLen   = 100
	maxSymbolLen = 20
	maxURILen    = 400
)

// onChainMetadata is the prefix of a Metaplex metadata account that carries
// display fields.
type onChainMetadata struct {
	Name   string
	Symbol string
	URI    string
}

// parseMetadataAccount decodes base64 Metaplex metadata account data.
// Layout: key u8 | update authority [32] | mint [32] | name | symbol | uri,
// strings are borsh encoded (u32 LE length + bytes, NUL padded).
func parseMetadataAccount(data string) (*onChainMetadata, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode metadata account: %w", err)
	}
	if len(raw) < 1+32+32 {
		return nil, fmt.Errorf("metadata account too short: %d bytes", len(raw))
	}
	if raw[0] != metadataV1Key {
		return nil, fmt.Errorf("unexpected metadata key %d", raw[0])
	}

	r := borshReader{buf: raw, off: 65}
	meta := &onChainMetadata{}
	if meta.Name, err = r.string(maxNameLen); err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	if meta.Symbol, err = r.string(maxSymbolLen); err != nil {
		return nil, fmt.Errorf("read symbol: %w", err)
	}
	// Older accounts may be truncated after the symbol.
	meta.URI, _ = r.string(maxURILen)

	if meta.Name == "" && meta.Symbol == "" {
		return nil, errors.New("metadata has no name or symbol")
	}
	return meta, nil
}

type borshReader struct {
	buf []byte
	off int
}

func (r *borshReader) string(max int) (string, error) {
	if r.off+4 > len(r.buf) {
		return "", errors.New("unexpected end of data")
	}
	n := int(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if n > max || r.off+n > len(r.buf) {
		return "", fmt.Errorf("invalid string length %d", n)
	}
	s := strings.TrimSpace(strings.TrimRight(string(r.buf[r.off:r.off+n]), "\x00"))
	r.off += n
	return s, nil
}
