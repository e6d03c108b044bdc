// Package filecoin holds the Filecoin primitives the faucet needs to build,
// encode and sign a value transfer: token amounts, addresses scoped to a
// network, the message model and its CBOR/CID form, Lotus JSON wire shapes
// and secp256k1 funding keys.
package filecoin
