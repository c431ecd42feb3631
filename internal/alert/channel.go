package alert

import "strings"

// Channel is a symbolic topic from the fixed enumeration; the routing
// key for distribution.
type Channel string

const (
	ChannelRegSEC            Channel = "regulatory/sec"
	ChannelRegCFTC           Channel = "regulatory/cftc"
	ChannelRegGlobal         Channel = "regulatory/global"
	ChannelRegFed            Channel = "regulatory/fed"
	ChannelInstBanks         Channel = "institutional/banks"
	ChannelInstAssetManagers Channel = "institutional/asset-managers"
	ChannelDeFiYields        Channel = "defi/yields"
	ChannelDeFiHacks         Channel = "defi/hacks"
	ChannelDeFiProtocols     Channel = "defi/protocols"
	ChannelRWATokenization   Channel = "rwa/tokenization"
	ChannelSolana            Channel = "networks/solana"
	ChannelEthereum          Channel = "networks/ethereum"
	ChannelCanton            Channel = "networks/canton"
	ChannelHedera            Channel = "networks/hedera"
	ChannelRipple            Channel = "networks/ripple"
	ChannelAvalanche         Channel = "networks/avalanche"
	ChannelBitcoin           Channel = "networks/bitcoin"
	ChannelChainlink         Channel = "networks/chainlink"
	ChannelAlgorand          Channel = "networks/algorand"
	ChannelWhaleMovements    Channel = "markets/whale-movements"
	ChannelLiquidations      Channel = "markets/liquidations"
)

// coreChannels is the closed part of the enumeration.
var coreChannels = map[Channel]struct{}{
	ChannelRegSEC:            {},
	ChannelRegCFTC:           {},
	ChannelRegGlobal:         {},
	ChannelRegFed:            {},
	ChannelInstBanks:         {},
	ChannelInstAssetManagers: {},
	ChannelDeFiYields:        {},
	ChannelDeFiHacks:         {},
	ChannelDeFiProtocols:     {},
	ChannelRWATokenization:   {},
	ChannelSolana:            {},
	ChannelEthereum:          {},
	ChannelCanton:            {},
	ChannelHedera:            {},
	ChannelRipple:            {},
	ChannelAvalanche:         {},
	ChannelBitcoin:           {},
	ChannelChainlink:         {},
	ChannelAlgorand:          {},
	ChannelWhaleMovements:    {},
	ChannelLiquidations:      {},
}

// aggregatedPrefixes are the open channel families used by
// general-news adapters: any single lowercase segment after the prefix
// is a valid bucket (e.g. "news/banking", "exchanges/binance").
var aggregatedPrefixes = []string{"news/", "exchanges/"}

// ValidChannel reports whether ch is a member of the channel surface:
// either one of the core channels or an aggregated bucket.
func ValidChannel(ch Channel) bool {
	if _, ok := coreChannels[ch]; ok {
		return true
	}
	s := string(ch)
	for _, prefix := range aggregatedPrefixes {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			return validSegment(rest)
		}
	}
	return false
}

// validSegment accepts one non-empty lowercase path segment:
// letters, digits and hyphens, no further slashes.
func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// CoreChannels returns the closed enumeration in a stable order,
// for the ListChannels endpoint.
func CoreChannels() []Channel {
	return []Channel{
		ChannelRegSEC,
		ChannelRegCFTC,
		ChannelRegGlobal,
		ChannelRegFed,
		ChannelInstBanks,
		ChannelInstAssetManagers,
		ChannelDeFiYields,
		ChannelDeFiHacks,
		ChannelDeFiProtocols,
		ChannelRWATokenization,
		ChannelSolana,
		ChannelEthereum,
		ChannelCanton,
		ChannelHedera,
		ChannelRipple,
		ChannelAvalanche,
		ChannelBitcoin,
		ChannelChainlink,
		ChannelAlgorand,
		ChannelWhaleMovements,
		ChannelLiquidations,
	}
}

// ValidChannels reports whether every element of chs is valid and the
// list is non-empty.
func ValidChannels(chs []Channel) bool {
	if len(chs) == 0 {
		return false
	}
	for _, ch := range chs {
		if !ValidChannel(ch) {
			return false
		}
	}
	return true
}
