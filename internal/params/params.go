package params

const (
	SecParam = 256
	SecBytes = SecParam / 8

	// BytesScalar is the size of a canonically encoded secp256k1 scalar.
	BytesScalar = 32
	// BytesPoint is the size of a compressed secp256k1 point.
	BytesPoint = 33

	// NumberOfCredentials is the number of credentials presented and requested in
	// every credential request (k in the WabiSabi paper).
	NumberOfCredentials = 2

	// MaxAmountCredentialValue is the largest amount, in satoshis, a single amount
	// credential can carry. Range proofs are sized to its bit length.
	MaxAmountCredentialValue = 4_300_000_000_000

	// MaxVsizeCredentialValue is the largest vsize budget a single vsize credential
	// can carry.
	MaxVsizeCredentialValue = 255

	// MaxVsizeAllocationPerAlice is the vsize budget granted to each registered input,
	// which must cover the input itself plus the outputs it pays for.
	MaxVsizeAllocationPerAlice = MaxVsizeCredentialValue

	// NonceEntropyBytes is the amount of fresh randomness mixed into every
	// synthetic nonce stream.
	NonceEntropyBytes = 32
)
