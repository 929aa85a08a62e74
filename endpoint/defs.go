package endpoint

import "github.com/arloliu/go-eyescan/property"

var (
	patterns  = []any{"PRBS 7", "PRBS 9", "PRBS 15", "PRBS 23", "PRBS 31", "User Defined"}
	loopbacks = []any{"None", "Near-End PCS", "Near-End PMA", "Far-End PMA", "Far-End PCS"}
)

// DefaultDefs returns the standard property set of kind.
func DefaultDefs(kind Kind) []property.Def {
	switch kind {
	case RX:
		return []property.Def{
			{Name: "rx_pattern", Description: "expected receive pattern", Type: property.String,
				Perms: property.PermAll, Default: "PRBS 31", Domain: patterns, Groups: []string{"Pattern"}},
			{Name: "rx_polarity_invert", Description: "invert receive polarity", Type: property.Bool,
				Perms: property.PermAll, Default: false, Groups: []string{"Pattern"}},
			{Name: "loopback", Description: "loopback mode", Type: property.String,
				Perms: property.PermAll, Default: "None", Domain: loopbacks, Groups: []string{"Advanced"}},
			{Name: "rx_ber", Description: "measured bit error rate", Type: property.Float,
				Perms: property.PermReadOnly, Kind: property.Computed, Groups: []string{"Status"}},
			{Name: "rx_received_bit_count", Type: property.Int,
				Perms: property.PermReadOnly, Kind: property.Computed, Groups: []string{"Status"}},
			{Name: "rx_error_count", Type: property.Int,
				Perms: property.PermReadOnly, Kind: property.Computed, Groups: []string{"Status"}},
			{Name: "rx_reset", Description: "reset the receiver datapath", Type: property.Bool,
				Perms: property.PermSet | property.PermCommit, Default: false, Groups: []string{"Advanced"}},
		}
	case TX:
		return []property.Def{
			{Name: "tx_pattern", Description: "transmit pattern", Type: property.String,
				Perms: property.PermAll, Default: "PRBS 31", Domain: patterns, Groups: []string{"Pattern"}},
			{Name: "tx_polarity_invert", Description: "invert transmit polarity", Type: property.Bool,
				Perms: property.PermAll, Default: false, Groups: []string{"Pattern"}},
			{Name: "tx_inject_error", Description: "inject one bit error", Type: property.Bool,
				Perms: property.PermSet | property.PermCommit, Default: false, Groups: []string{"Advanced"}},
			{Name: "tx_pre_cursor", Description: "pre-cursor emphasis (dB)", Type: property.Float,
				Perms: property.PermAll, Default: 0.0, Groups: []string{"Equalization"}},
			{Name: "tx_post_cursor", Description: "post-cursor emphasis (dB)", Type: property.Float,
				Perms: property.PermAll, Default: 0.0, Groups: []string{"Equalization"}},
		}
	case Link:
		return []property.Def{
			{Name: "status", Description: "link status", Type: property.String,
				Perms: property.PermReadOnly, Kind: property.Computed, Default: "No link", Groups: []string{"Status"}},
			{Name: "line_rate", Description: "line rate (Gbps)", Type: property.Float,
				Perms: property.PermReadOnly, Kind: property.Computed, Groups: []string{"Status"}},
		}
	case GT:
		return []property.Def{
			{Name: "pll_locked", Description: "channel PLL lock", Type: property.Bool,
				Perms: property.PermReadOnly, Kind: property.Computed, Default: false, Groups: []string{"Status"}},
			{Name: "reset", Description: "reset the transceiver", Type: property.Bool,
				Perms: property.PermSet | property.PermCommit, Default: false},
		}
	case GTGroup:
		return []property.Def{
			{Name: "qpll_locked", Description: "quad PLL lock", Type: property.Bool,
				Perms: property.PermReadOnly, Kind: property.Computed, Default: false, Groups: []string{"Status"}},
			{Name: "refclk_frequency", Description: "reference clock (MHz)", Type: property.Float,
				Perms: property.PermReadOnly, Kind: property.Computed, Groups: []string{"Status"}},
		}
	default:
		return nil
	}
}
