// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

// Denominations of value.
// LOS uses 11 decimals; the smallest indivisible unit is the CIL.
const (
	CIL      uint64 = 1               // Base unit - 0.00000000001 LOS
	MicroLOS uint64 = 100_000 * CIL   // 0.000001 LOS
	MilliLOS uint64 = 1000 * MicroLOS // 0.001 LOS
	LOS      uint64 = 1000 * MilliLOS // 1 LOS = 10^11 CIL
	KiloLOS  uint64 = 1000 * LOS      // 1,000 LOS
	MegaLOS  uint64 = 1000 * KiloLOS  // 1,000,000 LOS

	// Decimals is the number of fractional digits of one LOS.
	Decimals = 11
)
