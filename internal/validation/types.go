package validation

// DripRequest is the payload for POST /faucet/:network/drip
type DripRequest struct {
	Address string `json:"address" validate:"required,filecoin_address"` // f…, t… or 0x…
}

// HistoryQuery is the query string of GET /faucet/:network/history
type HistoryQuery struct {
	Address string `form:"address" validate:"required,filecoin_address"`
	Limit   int    `form:"limit" validate:"omitempty,min=1,max=1000"` // clamped by the history service
}

// InfoQuery is the query string of GET /faucet/:network
type InfoQuery struct {
	Address string `form:"address" validate:"omitempty,filecoin_address"` // optional recipient to report a balance for
}
