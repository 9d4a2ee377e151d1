package agent

import engine "github.com/palacecards/palace/engine"

const (
	// NumSeats is the number of seat blocks in the encoding. Seats beyond the
	// match's player count encode as zeros.
	NumSeats = engine.MaxPlayers // 4

	// NumRankFeatures is the number of rank counters per tier: Two..Ace, Joker.
	NumRankFeatures = 14

	// TierDim is the width of one tier block; SeatDim of one seat block.
	TierDim = NumRankFeatures                // 14
	SeatDim = int(engine.NumTiers) * TierDim // 42
	HandDim = NumSeats * SeatDim             // 168

	OffsetPileTop   = HandDim     // 168: pile top rank value, 0 when empty
	OffsetRankCap   = HandDim + 1 // 169: 1 while the rank-cap is active
	OffsetPileSize  = HandDim + 2 // 170: cards on the pile
	OffsetStockSize = HandDim + 3 // 171: cards left in the stock

	InputDim   = HandDim + 4            // 172
	NumActions = int(engine.NumActions) // 55: MaxPlayable play indices + pickup
)

// RankFeatureIndex returns the counter index (0-13) for a rank: Two=0 through
// Ace=12, Joker=13. It returns -1 for RankNone or any rank outside the table.
func RankFeatureIndex(r engine.Rank) int {
	if !r.Valid() {
		return -1
	}
	return int(r) - int(engine.RankTwo)
}

// RelativeSeat returns the seat block of player as seen by viewer: 0 for the
// viewer itself, k for the k-th player after the viewer in turn order.
func RelativeSeat(viewer, player, numPlayers uint8) uint8 {
	return (player + numPlayers - viewer) % numPlayers
}

// FeatureOffset returns the index of the counter for rank in tier of the
// given relative seat, or -1 when rank has no counter.
func FeatureOffset(seat uint8, tier engine.Tier, rank engine.Rank) int {
	ri := RankFeatureIndex(rank)
	if ri < 0 {
		return -1
	}
	return int(seat)*SeatDim + int(tier)*TierDim + ri
}
