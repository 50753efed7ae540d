package webrtc

import "strconv"

// ShouldCreateOffer resolves glare: when both sides of a pair could initiate
// negotiation, exactly one of them may create the offer. Ws identifiers carry
// a numeric component ("0007:2" and the like); the digits are extracted and
// compared as integers, and the side with the higher value offers; the lower
// side always answers. The comparison is deterministic and symmetric, so both
// peers agree without coordination.
func ShouldCreateOffer(selfWsID, opponentWsID string) bool {
	self, selfOK := numericPart(selfWsID)
	opp, oppOK := numericPart(opponentWsID)
	if selfOK && oppOK && self != opp {
		return self > opp
	}
	// Ids with no digits (or identical digits) still need a stable winner.
	return selfWsID > opponentWsID
}

// numericPart extracts every digit of id and parses the result as one
// integer. Returns false when the id contains no digits or overflows.
func numericPart(id string) (uint64, bool) {
	digits := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		if id[i] >= '0' && id[i] <= '9' {
			digits = append(digits, id[i])
		}
	}
	if len(digits) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(string(digits), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
