package recommend

// 2.4 GHz Wi-Fi channel center frequencies in MHz. Channel 14 sits apart
// from the 5 MHz grid, so a table beats a formula.
var wifiChannelFreq = map[int]int{
	1:  2412,
	2:  2417,
	3:  2422,
	4:  2427,
	5:  2432,
	6:  2437,
	7:  2442,
	8:  2447,
	9:  2452,
	10: 2457,
	11: 2462,
	12: 2467,
	13: 2472,
	14: 2484,
}

// Zigbee channel center frequencies in MHz.
var zigbeeChannelFreq = map[int]int{
	11: 2405,
	12: 2410,
	13: 2415,
	14: 2420,
	15: 2425,
	16: 2430,
	17: 2435,
	18: 2440,
	19: 2445,
	20: 2450,
	21: 2455,
	22: 2460,
	23: 2465,
	24: 2470,
	25: 2475,
	26: 2480,
}

// CandidateChannels are the Zigbee channels eligible for recommendation,
// spread across the band so at least one dodges any common Wi-Fi layout.
var CandidateChannels = []int{11, 15, 20, 25}

// DefaultChannel is recommended when no scan data is available.
const DefaultChannel = 25

// Wi-Fi occupies roughly this span around its center frequency; beyond it a
// Zigbee channel sees no overlap.
const wifiBandwidthMHz = 22.0
