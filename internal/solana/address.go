package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of a Solana public key.
const PublicKeyLength = 32

// ValidateAddress checks that addr is a base58 encoded 32 byte public key.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if len(addr) < 32 || len(addr) > 44 {
		return fmt.Errorf("%w: length %d", ErrInvalidAddress, len(addr))
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != PublicKeyLength {
		return fmt.Errorf("%w: decodes to %d bytes", ErrInvalidAddress, len(decoded))
	}
	return nil
}

// IsValidAddress reports whether addr passes ValidateAddress.
func IsValidAddress(addr string) bool {
	return ValidateAddress(addr) == nil
}

// IsOnCurve reports whether addr is a point on the ed25519 curve.
// Wallets controlled by a keypair are on-curve; program derived addresses are not.
func IsOnCurve(addr string) bool {
	decoded, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	return isOnCurve(decoded)
}

func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// FindProgramAddress derives a Program Derived Address for the given seeds.
// The bump search starts at 255 and returns the first off-curve hash.
func FindProgramAddress(seeds [][]byte, programID string) (string, error) {
	programBytes, err := base58.Decode(programID)
	if err != nil || len(programBytes) != PublicKeyLength {
		return "", fmt.Errorf("%w: program id %s", ErrInvalidAddress, programID)
	}

	for bump := 255; bump >= 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, programBytes...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}

	return "", fmt.Errorf("no viable bump seed for program %s", programID)
}

// MetadataAddress derives the Metaplex token metadata account for a mint.
// Seeds: ["metadata", metaplex_program_id, mint]
func MetadataAddress(mint string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil || len(mintBytes) != PublicKeyLength {
		return "", fmt.Errorf("%w: mint %s", ErrInvalidAddress, mint)
	}
	programBytes, err := base58.Decode(MetaplexProgramID)
	if err != nil {
		return "", err
	}
	return FindProgramAddress([][]byte{
		[]byte("metadata"),
		programBytes,
		mintBytes,
	}, MetaplexProgramID)
}
