package poswark

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
)

const DATA_CACHE_DIR = "data"
const SRS_FILE = "SRS.CK.BIN"
const SRS_SIZE = 1 << 16
const SRS_CK_HASH = "6f0b8dd0c3e56f2b64ca0bbb4f5e1a07c8a0d7a64f14d5c1b9a3e8e14f2e7d14"

// One serialized G1 point in the SRS wire format: 6+6 big-endian uint64 limbs.
const G1_POINT_BYTES = 2 * fp.Bytes

// Tables above this window do not fit device memory on any card we target.
const MAX_TABLE_WINDOW = 16

const HASH_T = 2
const HASH_RF = 8
const HASH_RP = 56

var FIELD = ecc.BLS12_377.ScalarField()
var COSET_SHIFT = fr.NewElement(7)
