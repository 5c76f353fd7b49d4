package btcspv

import "github.com/nearlight/btcspv/chainmodel"

// Header, HeaderRecord, ZcashHeader and AuxData are defined in chainmodel
// (component A / data model, spec.md §3-4.1) so that the store package can
// depend on them without importing this package. They are aliased here so
// the root package's external interface (client.go) can expose them as its
// own types, per spec.md §6.
type (
	Header       = chainmodel.Header
	HeaderRecord = chainmodel.HeaderRecord
	ZcashHeader  = chainmodel.ZcashHeader
	AuxData      = chainmodel.AuxData
)

// DecodeHeader parses a canonical 80-byte header (spec.md §4.1).
func DecodeHeader(b []byte) (*Header, error) { return chainmodel.DecodeHeader(b) }

// HeaderSize is the fixed wire size of a Bitcoin-family header.
const HeaderSize = chainmodel.HeaderSize
