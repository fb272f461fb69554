package domain

import "strings"

type ChainID string
type ChainFamily string

const (
	// Chain IDs
	ChainEthereum ChainID = "ethereum"
	ChainBase     ChainID = "base"
	ChainPolygon  ChainID = "polygon"
	ChainArbitrum ChainID = "arbitrum"
	ChainSolana   ChainID = "solana"

	// Chain families
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
)

// Burn addresses used when a chain config does not override them.
const (
	EVMBurnAddress    = "0x000000000000000000000000000000000000dEaD"
	SolanaBurnAddress = "11111111111111111111111111111111"
)

// ChainInfo describes a supported chain.
type ChainInfo struct {
	ID          ChainID     `json:"id"`
	Name        string      `json:"name"`
	Family      ChainFamily `json:"family"`
	NumericID   string      `json:"chain_id"`
	Currency    string      `json:"currency"`
	Explorer    string      `json:"explorer"`
	BurnAddress string      `json:"burn_address"`
}

// TxURL returns the explorer link for a transaction reference.
func (c ChainInfo) TxURL(txRef string) string {
	if c.Explorer == "" || txRef == "" {
		return ""
	}
	return strings.TrimRight(c.Explorer, "/") + "/tx/" + txRef
}

// KnownChains maps ChainID to its default description.
var KnownChains = map[ChainID]ChainInfo{
	ChainEthereum: {ID: ChainEthereum, Name: "Ethereum", Family: FamilyEVM, NumericID: "1", Currency: "ETH", Explorer: "https://etherscan.io", BurnAddress: EVMBurnAddress},
	ChainBase:     {ID: ChainBase, Name: "Base", Family: FamilyEVM, NumericID: "8453", Currency: "ETH", Explorer: "https://basescan.org", BurnAddress: EVMBurnAddress},
	ChainPolygon:  {ID: ChainPolygon, Name: "Polygon", Family: FamilyEVM, NumericID: "137", Currency: "MATIC", Explorer: "https://polygonscan.com", BurnAddress: EVMBurnAddress},
	ChainArbitrum: {ID: ChainArbitrum, Name: "Arbitrum", Family: FamilyEVM, NumericID: "42161", Currency: "ETH", Explorer: "https://arbiscan.io", BurnAddress: EVMBurnAddress},
	ChainSolana:   {ID: ChainSolana, Name: "Solana", Family: FamilySolana, NumericID: "mainnet-beta", Currency: "SOL", Explorer: "https://solscan.io", BurnAddress: SolanaBurnAddress},
}

// SameAddress compares two addresses using the family's rules:
// case-insensitive hex on EVM, exact base58 on Solana.
func SameAddress(family ChainFamily, a, b string) bool {
	if family == FamilyEVM {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// NormalizeAddress returns the canonical map-key form of an address.
func NormalizeAddress(family ChainFamily, addr string) string {
	addr = strings.TrimSpace(addr)
	if family == FamilyEVM {
		return strings.ToLower(addr)
	}
	return addr
}
