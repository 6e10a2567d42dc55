// Package wire encodes and decodes Code images exchanged between a
// front end and the kestrel core.
package wire

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/chazu/kestrel/vm"
	"github.com/fxamacker/cbor/v2"
)

// Version is the image format version written by Marshal.
const Version = 1

// ErrCyclicCode is returned when a Code graph refers back to itself. The
// image format is a tree; recursion must go through names at run time.
var ErrCyclicCode = errors.New("wire: cyclic code graph")

// Image is the top-level envelope of an encoded program.
type Image struct {
	Version uint     `cbor:"1,keyasint"`
	Code    *vm.Code `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:   512,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// MarshalCode serializes c as a versioned image. The encoding is
// canonical: equal programs produce identical bytes.
func MarshalCode(c *vm.Code) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("wire: nil code")
	}
	if err := checkTree(c, map[*vm.Code]bool{}); err != nil {
		return nil, err
	}
	return encMode.Marshal(&Image{Version: Version, Code: c})
}

// UnmarshalCode decodes an image and validates the contained Code.
// Invalid code is rejected here rather than at first execution.
func UnmarshalCode(data []byte) (*vm.Code, error) {
	var img Image
	if err := decMode.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("wire: unmarshal image: %w", err)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("wire: unsupported image version %d (want %d)", img.Version, Version)
	}
	if img.Code == nil {
		return nil, fmt.Errorf("wire: image has no code")
	}
	if err := img.Code.Validate(); err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	return img.Code, nil
}

// Hash returns the SHA-256 digest of the canonical encoding of c.
func Hash(c *vm.Code) ([32]byte, error) {
	data, err := MarshalCode(c)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// checkTree rejects Code graphs where a function body contains itself.
// Shared subtrees are fine; they are simply encoded twice.
func checkTree(c *vm.Code, path map[*vm.Code]bool) error {
	if path[c] {
		return fmt.Errorf("%w: %q", ErrCyclicCode, c.Name)
	}
	path[c] = true
	defer delete(path, c)
	for _, k := range c.Consts {
		if err := checkConst(k, path); err != nil {
			return err
		}
	}
	return nil
}

func checkConst(k vm.Const, path map[*vm.Code]bool) error {
	if k.Kind != vm.ConstFunc || k.Func == nil {
		return nil
	}
	if k.Func.Code != nil {
		if err := checkTree(k.Func.Code, path); err != nil {
			return err
		}
	}
	for _, d := range k.Func.Defaults {
		if err := checkConst(d.Default, path); err != nil {
			return err
		}
	}
	return nil
}
